package policy

// Ownership describes how a resource is tied to a seller.
type Ownership int

const (
	// OwnershipNone resources are shared; any seller or admin may manage them.
	OwnershipNone Ownership = iota
	// OwnershipDirect resources store seller_id themselves.
	OwnershipDirect
	// OwnershipTransitive resources derive their owner through another record.
	OwnershipTransitive
)

// Capabilities are the per-resource flags the decision procedure consults.
type Capabilities struct {
	Ownership  Ownership
	PublicRead bool
}

type Resource string

const (
	ResourceProduct   Resource = "product"
	ResourceCategory  Resource = "category"
	ResourceAttribute Resource = "attribute"
	ResourceBusiness  Resource = "business"
	ResourceSite      Resource = "site"
	ResourceHeroSlide Resource = "hero_slide"
	ResourceStory     Resource = "story"
	ResourceStoryCard Resource = "story_card"
	ResourceAnalytics Resource = "analytics"
)

// Attributes are owned through the products that reference them, sites
// through the business that links them and analytics through their business.
// Hero slides, stories and story cards carry no owner.
var capabilities = map[Resource]Capabilities{
	ResourceProduct:   {Ownership: OwnershipDirect, PublicRead: true},
	ResourceCategory:  {Ownership: OwnershipDirect, PublicRead: true},
	ResourceAttribute: {Ownership: OwnershipTransitive, PublicRead: true},
	ResourceBusiness:  {Ownership: OwnershipDirect},
	ResourceSite:      {Ownership: OwnershipTransitive},
	ResourceHeroSlide: {Ownership: OwnershipNone, PublicRead: true},
	ResourceStory:     {Ownership: OwnershipNone, PublicRead: true},
	ResourceStoryCard: {Ownership: OwnershipNone},
	ResourceAnalytics: {Ownership: OwnershipTransitive},
}

// CapabilitiesOf returns the flags for r. Unknown resources are treated as
// owned and private.
func CapabilitiesOf(r Resource) Capabilities {
	if caps, ok := capabilities[r]; ok {
		return caps
	}
	return Capabilities{Ownership: OwnershipDirect}
}
