package xray

// Request bodies sent by the templates. Field order and JSON names follow the
// Artifactory and Xray REST APIs; values that the workload never varies are
// filled in by the builders in templates.go.

// RepositoryConfig is the body of PUT /artifactory/api/repositories/{key}.
type RepositoryConfig struct {
	Key         string `json:"key"`
	ProjectKey  string `json:"projectKey"`
	PackageType string `json:"packageType"`
	Rclass      string `json:"rclass"`
	XrayIndex   bool   `json:"xrayIndex"`
}

// ArtifactRef identifies an artifact by repository and path.
type ArtifactRef struct {
	Repo string `json:"repo"`
	Path string `json:"path"`
}

// Policy is the body of POST /xray/api/v2/policies.
type Policy struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        string       `json:"type"`
	Rules       []PolicyRule `json:"rules"`
}

// PolicyRule is a single rule of a security policy.
type PolicyRule struct {
	Name     string         `json:"name"`
	Criteria PolicyCriteria `json:"criteria"`
	Actions  PolicyActions  `json:"actions"`
	Priority int            `json:"priority"`
}

// PolicyCriteria selects which violations a rule matches.
type PolicyCriteria struct {
	MaliciousPackage    bool   `json:"malicious_package"`
	FixVersionDependant bool   `json:"fix_version_dependant"`
	MinSeverity         string `json:"min_severity"`
}

// PolicyActions lists what Xray does when a rule matches.
// Mails and Webhooks must encode as [] rather than null.
type PolicyActions struct {
	Mails                          []string      `json:"mails"`
	Webhooks                       []string      `json:"webhooks"`
	FailBuild                      bool          `json:"fail_build"`
	BlockReleaseBundleDistribution bool          `json:"block_release_bundle_distribution"`
	BlockReleaseBundlePromotion    bool          `json:"block_release_bundle_promotion"`
	NotifyDeployer                 bool          `json:"notify_deployer"`
	NotifyWatchRecipients          bool          `json:"notify_watch_recipients"`
	CreateTicketEnabled            bool          `json:"create_ticket_enabled"`
	BlockDownload                  BlockDownload `json:"block_download"`
}

// BlockDownload controls download blocking for matched artifacts.
type BlockDownload struct {
	Active    bool `json:"active"`
	Unscanned bool `json:"unscanned"`
}

// Watch is the body of POST /xray/api/v2/watches.
type Watch struct {
	GeneralData      WatchGeneralData      `json:"general_data"`
	ProjectResources WatchProjectResources `json:"project_resources"`
	AssignedPolicies []AssignedPolicy      `json:"assigned_policies"`
}

// WatchGeneralData holds a watch's identity.
type WatchGeneralData struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// WatchProjectResources lists the resources a watch covers.
type WatchProjectResources struct {
	Resources []WatchResource `json:"resources"`
}

// WatchResource is one watched resource.
type WatchResource struct {
	Type     string        `json:"type"`
	BinMgrID string        `json:"bin_mgr_id"`
	Name     string        `json:"name"`
	Filters  []WatchFilter `json:"filters"`
}

// WatchFilter narrows a watched resource.
type WatchFilter struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// AssignedPolicy attaches a policy to a watch.
type AssignedPolicy struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ApplyWatchRequest is the body of POST /xray/api/v1/applyWatch.
type ApplyWatchRequest struct {
	WatchNames []string  `json:"watch_names"`
	DateRange  DateRange `json:"date_range"`
}

// DateRange bounds a historical watch application.
type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// ViolationsRequest is the body of POST /xray/api/v1/violations.
type ViolationsRequest struct {
	Filters    ViolationFilters `json:"filters"`
	Pagination Pagination       `json:"pagination"`
}

// ViolationFilters restricts the violations returned.
type ViolationFilters struct {
	WatchName     string             `json:"watch_name"`
	ViolationType string             `json:"violation_type"`
	MinSeverity   string             `json:"min_severity"`
	Resources     ViolationResources `json:"resources"`
}

// ViolationResources lists the artifacts to query.
type ViolationResources struct {
	Artifacts []ArtifactRef `json:"artifacts"`
}

// Pagination controls result ordering and paging.
type Pagination struct {
	OrderBy   string `json:"order_by"`
	Direction string `json:"direction"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}
