package taxonomy

// CatchAllBucket is appended to flat taxonomies so that products the
// classifier cannot place still have a deterministic home.
const CatchAllBucket = "Other"

// defaultFlat is the fallback taxonomy when flat generation fails.
var defaultFlat = []string{
	"Apparel",
	"Home & Living",
	"Tools & Hardware",
	"Outdoor & Garden",
	"Electronics",
	CatchAllBucket,
}

// defaultHierarchical is the fallback taxonomy when hierarchical generation
// fails. Order is significant; it becomes taxonomy iteration order.
var defaultHierarchical = []struct {
	parent string
	subs   []string
}{
	{"Apparel", []string{"Clothing", "Footwear", "Accessories"}},
	{"Home & Living", []string{"Storage", "Decor", "Kitchen"}},
	{"Tools & Hardware", []string{"Hand Tools", "Power Tools"}},
	{"Outdoor & Garden", []string{"Garden", "Sports & Recreation"}},
	{"General", []string{"Everything Else"}},
}
