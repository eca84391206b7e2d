package enums

// Audience identifies who a notification intent is addressed to.
type Audience string

const (
	AudienceFinance   Audience = "finance"
	AudienceApprover  Audience = "approver"
	AudienceSubmitter Audience = "submitter"
	AudienceTechnical Audience = "technical"
)

var validAudiences = []Audience{
	AudienceFinance,
	AudienceApprover,
	AudienceSubmitter,
	AudienceTechnical,
}

// IsValid reports whether the audience is known.
func (a Audience) IsValid() bool {
	for _, candidate := range validAudiences {
		if candidate == a {
			return true
		}
	}
	return false
}
