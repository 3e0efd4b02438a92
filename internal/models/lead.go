package models

// LeadStatus is the status of an inquiry lead. Only the statuses the ledger
// touches are listed; the inquiry flow owns the rest.
type LeadStatus string

const (
	LeadStatusConverted LeadStatus = "CONVERTED"
	LeadStatusRefunded  LeadStatus = "REFUNDED"
)

// Lead is the public inquiry a sale may originate from
type Lead struct {
	Base
	AffiliateCode string     `gorm:"type:varchar(64);index" json:"affiliate_code"`
	CustomerName  string     `gorm:"type:varchar(255)" json:"customer_name"`
	Status        LeadStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	// PreRefundStatus holds the status a cancelled refund restores
	PreRefundStatus LeadStatus `gorm:"type:varchar(20)" json:"pre_refund_status,omitempty"`
}

// TableName pins the table name
func (Lead) TableName() string {
	return "leads"
}
