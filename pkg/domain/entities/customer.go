package entities

// RestrictionKey names one batch attribute a customer can restrict
type RestrictionKey string

const (
	RestrictOriginCountry      RestrictionKey = "origin_country"
	RestrictVariety            RestrictionKey = "variety"
	RestrictCertificationID    RestrictionKey = "certification_id"
	RestrictQualityGrade       RestrictionKey = "quality_grade"
	RestrictTransportDocRef    RestrictionKey = "transport_doc_ref"
	RestrictMinimumSize        RestrictionKey = "minimum_size"
	RestrictOriginPalletNumber RestrictionKey = "origin_pallet_number"
	RestrictSupplier           RestrictionKey = "supplier"
)

// RestrictionKeys lists every restriction key in a fixed order
var RestrictionKeys = []RestrictionKey{
	RestrictOriginCountry,
	RestrictVariety,
	RestrictCertificationID,
	RestrictQualityGrade,
	RestrictTransportDocRef,
	RestrictMinimumSize,
	RestrictOriginPalletNumber,
	RestrictSupplier,
}

// CustomerRestrictions holds the sourcing constraints of a customer.
// An empty field imposes no constraint. The struct is comparable, so two
// restriction sets are equal exactly when every key matches.
type CustomerRestrictions struct {
	OriginCountry      string `json:"origin_country,omitempty" mapstructure:"origin_country"`
	Variety            string `json:"variety,omitempty" mapstructure:"variety"`
	CertificationID    string `json:"certification_id,omitempty" mapstructure:"certification_id"`
	QualityGrade       string `json:"quality_grade,omitempty" mapstructure:"quality_grade"`
	TransportDocRef    string `json:"transport_doc_ref,omitempty" mapstructure:"transport_doc_ref"`
	MinimumSize        string `json:"minimum_size,omitempty" mapstructure:"minimum_size"`
	OriginPalletNumber string `json:"origin_pallet_number,omitempty" mapstructure:"origin_pallet_number"`
	Supplier           string `json:"supplier,omitempty" mapstructure:"supplier"`
}

// Get returns the required value for a key, empty when unconstrained
func (r CustomerRestrictions) Get(key RestrictionKey) string {
	switch key {
	case RestrictOriginCountry:
		return r.OriginCountry
	case RestrictVariety:
		return r.Variety
	case RestrictCertificationID:
		return r.CertificationID
	case RestrictQualityGrade:
		return r.QualityGrade
	case RestrictTransportDocRef:
		return r.TransportDocRef
	case RestrictMinimumSize:
		return r.MinimumSize
	case RestrictOriginPalletNumber:
		return r.OriginPalletNumber
	case RestrictSupplier:
		return r.Supplier
	default:
		return ""
	}
}

// IsEmpty reports whether no key is constrained
func (r CustomerRestrictions) IsEmpty() bool {
	return r == CustomerRestrictions{}
}

// Attribute returns the batch attribute a restriction key is checked against
func (b *StockBatch) Attribute(key RestrictionKey) string {
	switch key {
	case RestrictOriginCountry:
		return b.OriginCountry
	case RestrictVariety:
		return b.Variety
	case RestrictCertificationID:
		return b.CertificationID
	case RestrictQualityGrade:
		return string(b.QualityGrade)
	case RestrictTransportDocRef:
		return b.TransportDocRef
	case RestrictMinimumSize:
		return b.MinimumSize
	case RestrictOriginPalletNumber:
		return b.OriginPalletNumber
	case RestrictSupplier:
		return b.Supplier
	default:
		return ""
	}
}

// Customer represents a buyer with its sourcing restrictions
type Customer struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Restrictions CustomerRestrictions `json:"restrictions"`
}
