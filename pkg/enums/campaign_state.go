package enums

import "fmt"

// CampaignState is the publication state of a campaign.
type CampaignState string

const (
	CampaignStateDraft     CampaignState = "draft"
	CampaignStatePublished CampaignState = "published"
	CampaignStateArchived  CampaignState = "archived"
)

var validCampaignStates = []CampaignState{
	CampaignStateDraft,
	CampaignStatePublished,
	CampaignStateArchived,
}

// String implements fmt.Stringer.
func (s CampaignState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CampaignState.
func (s CampaignState) IsValid() bool {
	for _, candidate := range validCampaignStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCampaignState converts raw input into a CampaignState.
func ParseCampaignState(value string) (CampaignState, error) {
	for _, candidate := range validCampaignStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid campaign state %q", value)
}
