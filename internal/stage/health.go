package stage

// Health reports whether a stage handler is ready to process jobs.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy builds a ready Health record for the named stage.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy builds a not-ready Health record carrying the reason.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
