package xray

// Fixtures names server-side objects that some templates reference but never
// create. They are expected to exist in the target environment before a run;
// the workload does not order template execution to create them first.
type Fixtures struct {
	// DockerRepo is the pre-seeded local Docker repository.
	DockerRepo string `json:"docker_repo,omitempty" yaml:"docker_repo,omitempty"`

	// ScanPath is the artifact path queried by Scan Status.
	ScanPath string `json:"scan_path,omitempty" yaml:"scan_path,omitempty"`

	// Policy is assigned to every watch created by Create Watch.
	Policy string `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Watch is applied by Apply Watch and filtered on by Get Violations.
	Watch string `json:"watch,omitempty" yaml:"watch,omitempty"`

	// ViolationPaths are the artifact paths (inside DockerRepo) queried by Get Violations.
	ViolationPaths []string `json:"violation_paths,omitempty" yaml:"violation_paths,omitempty"`

	// ApplyStart and ApplyEnd bound the Apply Watch date range (RFC 3339).
	ApplyStart string `json:"apply_start,omitempty" yaml:"apply_start,omitempty"`
	ApplyEnd   string `json:"apply_end,omitempty" yaml:"apply_end,omitempty"`
}

// DefaultFixtures returns the fixture names of the reference environment.
func DefaultFixtures() Fixtures {
	return Fixtures{
		DockerRepo:     "perf-test-docker-local",
		ScanPath:       "/alpine/3.9/manifest.json",
		Policy:         "perf-test-policy_1",
		Watch:          "perf-test-watch-1",
		ViolationPaths: []string{"/perf-alpine/1.0", "/alpine/3.9/manifest.json"},
		ApplyStart:     "2025-05-19T16:55:37+00:00",
		ApplyEnd:       "2025-06-30T16:19:37+00:00",
	}
}

// WithDefaults returns a copy with every empty field taken from DefaultFixtures.
func (f Fixtures) WithDefaults() Fixtures {
	d := DefaultFixtures()
	if f.DockerRepo == "" {
		f.DockerRepo = d.DockerRepo
	}
	if f.ScanPath == "" {
		f.ScanPath = d.ScanPath
	}
	if f.Policy == "" {
		f.Policy = d.Policy
	}
	if f.Watch == "" {
		f.Watch = d.Watch
	}
	if len(f.ViolationPaths) == 0 {
		f.ViolationPaths = d.ViolationPaths
	}
	if f.ApplyStart == "" {
		f.ApplyStart = d.ApplyStart
	}
	if f.ApplyEnd == "" {
		f.ApplyEnd = d.ApplyEnd
	}
	return f
}

// violationArtifacts expands ViolationPaths into artifact references.
func (f Fixtures) violationArtifacts() []ArtifactRef {
	artifacts := make([]ArtifactRef, 0, len(f.ViolationPaths))
	for _, p := range f.ViolationPaths {
		artifacts = append(artifacts, ArtifactRef{Repo: f.DockerRepo, Path: p})
	}
	return artifacts
}
