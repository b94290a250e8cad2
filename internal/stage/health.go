package stage

// Health summarizes whether the collaborator behind a stage is usable.
type Health struct {
	Stage  ID
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(id ID) Health {
	return Health{Stage: id, Ready: true}
}

// Unhealthy constructs a not-ready Health record with context detail.
func Unhealthy(id ID, detail string) Health {
	return Health{Stage: id, Ready: false, Detail: detail}
}
