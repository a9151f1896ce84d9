// Package xray defines the request templates that make up the Artifactory and
// Xray workload: what each request looks like and which responses count as
// success.
package xray

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// StatusSet is the set of status codes a template accepts as success.
type StatusSet []int

// Contains reports whether code is in the set.
func (s StatusSet) Contains(code int) bool {
	for _, c := range s {
		if c == code {
			return true
		}
	}
	return false
}

func (s StatusSet) String() string {
	codes := make([]string, len(s))
	for i, c := range s {
		codes[i] = strconv.Itoa(c)
	}
	return strings.Join(codes, ", ")
}

// Request is a built template, ready to be sent.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Builder holds what templates need to build requests. It is shared by all
// virtual users and must not be mutated after construction.
type Builder struct {
	Names    *NameGenerator
	Fixtures Fixtures
}

// NewBuilder returns a Builder using names for generated identifiers and
// fixtures (with defaults filled in) for pre-seeded objects.
func NewBuilder(names *NameGenerator, fixtures Fixtures) *Builder {
	return &Builder{Names: names, Fixtures: fixtures.WithDefaults()}
}

// Template is one API operation under test.
type Template struct {
	// Key is the identifier used in config files and on the command line.
	Key string

	// Name is the label samples are reported under.
	Name string

	Method   string
	Path     string
	Expected StatusSet

	// build returns the concrete path and the payload to encode, if any.
	build func(b *Builder) (string, interface{})
}

// Build produces a request. Templates that embed generated names draw a new
// name on every call.
func (t *Template) Build(b *Builder) (*Request, error) {
	path, payload := t.build(b)
	req := &Request{Method: t.Method, Path: path}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode payload: %w", t.Name, err)
		}
		req.Body = body
	}
	return req, nil
}

var catalog = []*Template{
	{
		Key:      "create-repo",
		Name:     "Create Repo",
		Method:   http.MethodPut,
		Path:     "/artifactory/api/repositories/{repo}",
		Expected: StatusSet{http.StatusOK, http.StatusCreated},
		build: func(b *Builder) (string, interface{}) {
			repo := b.Names.Repo()
			return "/artifactory/api/repositories/" + repo, RepositoryConfig{
				Key:         repo,
				ProjectKey:  "",
				PackageType: "docker",
				Rclass:      "local",
				XrayIndex:   true,
			}
		},
	},
	{
		Key:      "verify-repo",
		Name:     "Verify Repo",
		Method:   http.MethodGet,
		Path:     "/artifactory/api/repositories",
		Expected: StatusSet{http.StatusOK},
		build: func(b *Builder) (string, interface{}) {
			return "/artifactory/api/repositories", nil
		},
	},
	{
		Key:      "scan-status",
		Name:     "Scan Status",
		Method:   http.MethodPost,
		Path:     "/xray/api/v1/artifact/status",
		Expected: StatusSet{http.StatusOK},
		build: func(b *Builder) (string, interface{}) {
			return "/xray/api/v1/artifact/status", ArtifactRef{
				Repo: b.Fixtures.DockerRepo,
				Path: b.Fixtures.ScanPath,
			}
		},
	},
	{
		Key:      "create-policy",
		Name:     "Create Policy",
		Method:   http.MethodPost,
		Path:     "/xray/api/v2/policies",
		Expected: StatusSet{http.StatusCreated},
		build: func(b *Builder) (string, interface{}) {
			return "/xray/api/v2/policies", securityPolicy(b.Names.Policy())
		},
	},
	{
		Key:      "create-watch",
		Name:     "Create Watch",
		Method:   http.MethodPost,
		Path:     "/xray/api/v2/watches",
		Expected: StatusSet{http.StatusCreated},
		build: func(b *Builder) (string, interface{}) {
			return "/xray/api/v2/watches", Watch{
				GeneralData: WatchGeneralData{
					Name:        b.Names.Watch(),
					Description: "This watch is for the perf test",
					Active:      true,
				},
				ProjectResources: WatchProjectResources{
					Resources: []WatchResource{{
						Type:     "repository",
						BinMgrID: "default",
						Name:     b.Fixtures.DockerRepo,
						Filters:  []WatchFilter{{Type: "regex", Value: ".*"}},
					}},
				},
				AssignedPolicies: []AssignedPolicy{{Name: b.Fixtures.Policy, Type: "security"}},
			}
		},
	},
	{
		Key:      "apply-watch",
		Name:     "Apply Watch",
		Method:   http.MethodPost,
		Path:     "/xray/api/v1/applyWatch",
		Expected: StatusSet{http.StatusAccepted},
		build: func(b *Builder) (string, interface{}) {
			return "/xray/api/v1/applyWatch", ApplyWatchRequest{
				WatchNames: []string{b.Fixtures.Watch},
				DateRange: DateRange{
					StartDate: b.Fixtures.ApplyStart,
					EndDate:   b.Fixtures.ApplyEnd,
				},
			}
		},
	},
	{
		Key:      "get-violations",
		Name:     "Get Violations",
		Method:   http.MethodPost,
		Path:     "/xray/api/v1/violations",
		Expected: StatusSet{http.StatusOK},
		build: func(b *Builder) (string, interface{}) {
			return "/xray/api/v1/violations", ViolationsRequest{
				Filters: ViolationFilters{
					WatchName:     b.Fixtures.Watch,
					ViolationType: "Security",
					MinSeverity:   "High",
					Resources:     ViolationResources{Artifacts: b.Fixtures.violationArtifacts()},
				},
				Pagination: Pagination{
					OrderBy:   "created",
					Direction: "asc",
					Limit:     100,
					Offset:    1,
				},
			}
		},
	},
}

func securityPolicy(name string) Policy {
	return Policy{
		Name:        name,
		Description: "This is a specific CVEs security policy",
		Type:        "security",
		Rules: []PolicyRule{{
			Name: "some_rule",
			Criteria: PolicyCriteria{
				MaliciousPackage:    false,
				FixVersionDependant: false,
				MinSeverity:         "high",
			},
			Actions: PolicyActions{
				Mails:    []string{},
				Webhooks: []string{},
			},
			Priority: 1,
		}},
	}
}

// Catalog returns every template in a stable order.
func Catalog() []*Template {
	out := make([]*Template, len(catalog))
	copy(out, catalog)
	return out
}

// Keys returns the keys of every template, sorted.
func Keys() []string {
	keys := make([]string, len(catalog))
	for i, t := range catalog {
		keys[i] = t.Key
	}
	sort.Strings(keys)
	return keys
}

// Lookup finds a template by key. Matching ignores case.
func Lookup(key string) (*Template, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, t := range catalog {
		if t.Key == key {
			return t, true
		}
	}
	return nil, false
}

// Select resolves keys to templates, preserving order and dropping
// duplicates. An empty list selects the whole catalog.
func Select(keys []string) ([]*Template, error) {
	if len(keys) == 0 {
		return Catalog(), nil
	}

	seen := make(map[string]bool, len(keys))
	selected := make([]*Template, 0, len(keys))
	for _, key := range keys {
		t, ok := Lookup(key)
		if !ok {
			return nil, fmt.Errorf("unknown template %q", key)
		}
		if seen[t.Key] {
			continue
		}
		seen[t.Key] = true
		selected = append(selected, t)
	}
	return selected, nil
}
