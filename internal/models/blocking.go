package models

const (
	RuleActionRedirect = "redirect"
	ResourceMainFrame  = "main_frame"
)

// Rule mirrors a declarative redirect rule as registered with the rule engine.
type Rule struct {
	ID        int           `json:"id"`
	Priority  int           `json:"priority"`
	Action    RuleAction    `json:"action"`
	Condition RuleCondition `json:"condition"`
}

type RuleAction struct {
	Type     string        `json:"type"`
	Redirect *RuleRedirect `json:"redirect,omitempty"`
}

type RuleRedirect struct {
	ExtensionPath string `json:"extensionPath"`
}

type RuleCondition struct {
	URLFilter     string   `json:"urlFilter"`
	ResourceTypes []string `json:"resourceTypes"`
}

type RuleUpdate struct {
	RemoveRuleIDs []int  `json:"removeRuleIds,omitempty"`
	AddRules      []Rule `json:"addRules,omitempty"`
}

type BlockingStatus struct {
	Enabled      bool     `json:"enabled"`
	BlockedSites []string `json:"blockedSites"`
	StrictMode   bool     `json:"strictMode"`
}
