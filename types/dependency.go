package types

// Dependency declares which existing tasks a new task must wait for. Both fields are optional:
// an empty TaskType matches any type, empty ReferenceIDs matches any tag set.
type Dependency struct {
	TaskType     string
	ReferenceIDs []string
}

// DependOn is shorthand for a declaration on a task type with required reference tags.
func DependOn(taskType string, referenceIDs ...string) Dependency {
	return Dependency{TaskType: taskType, ReferenceIDs: referenceIDs}
}

// IsEmpty reports whether the declaration constrains nothing. Empty declarations are ignored
// during resolution.
func (d Dependency) IsEmpty() bool {
	return d.TaskType == "" && len(d.ReferenceIDs) == 0
}

// Matches reports whether t satisfies the declaration: same type (when set) and every required
// reference tag present.
func (d Dependency) Matches(t *Task) bool {
	if d.IsEmpty() {
		return false
	}
	if d.TaskType != "" && t.Type != d.TaskType {
		return false
	}
	for _, ref := range d.ReferenceIDs {
		if !t.HasReference(ref) {
			return false
		}
	}
	return true
}
