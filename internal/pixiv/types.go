package pixiv

// Restriction is the artwork content classification.
type Restriction int

const (
	RestrictionNone Restriction = iota
	RestrictionR18
	RestrictionR18G
)

func (r Restriction) Restricted() bool { return r != RestrictionNone }

func (r Restriction) String() string {
	switch r {
	case RestrictionR18:
		return "R-18"
	case RestrictionR18G:
		return "R-18G"
	default:
		return "none"
	}
}

// Illust is a fetched artwork. Immutable once returned by the client.
type Illust struct {
	ID          int64
	Title       string
	AuthorID    int64
	AuthorName  string
	Tags        []string
	Restriction Restriction
	// ImageURLs are the original image URLs in page order.
	ImageURLs  []string
	PageCount  int
	CreateDate string
}

// User is a fetched author profile.
type User struct {
	ID              int64
	Name            string
	Account         string
	Comment         string
	ProfileImageURL string
	TotalIllusts    int
}

// ---- wire payloads (app-api JSON) ----

type rootPayload struct {
	Illust  *illustPayload  `json:"illust"`
	Illusts []illustPayload `json:"illusts"`
	NextURL string          `json:"next_url"`
}

type illustPayload struct {
	ID             int64            `json:"id"`
	Title          string           `json:"title"`
	Type           string           `json:"type"`
	ImageURLs      imageURLsPayload `json:"image_urls"`
	Restrict       int64            `json:"restrict"`
	XRestrict      int64            `json:"x_restrict"`
	User           userPayload      `json:"user"`
	Tags           []tagPayload     `json:"tags"`
	CreateDate     string           `json:"create_date"`
	PageCount      int64            `json:"page_count"`
	MetaSinglePage metaSinglePage   `json:"meta_single_page"`
	MetaPages      []metaPage       `json:"meta_pages"`
	TotalView      int64            `json:"total_view"`
	TotalBookmarks int64            `json:"total_bookmarks"`
	Visible        bool             `json:"visible"`
}

type imageURLsPayload struct {
	SquareMedium string `json:"square_medium"`
	Medium       string `json:"medium"`
	Large        string `json:"large"`
	Original     string `json:"original"`
}

type metaSinglePage struct {
	OriginalImageURL string `json:"original_image_url"`
}

type metaPage struct {
	ImageURLs imageURLsPayload `json:"image_urls"`
}

type tagPayload struct {
	Name           string `json:"name"`
	TranslatedName any    `json:"translated_name"`
}

type userPayload struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Account          string `json:"account"`
	ProfileImageURLs struct {
		Medium string `json:"medium"`
	} `json:"profile_image_urls"`
}

type userDetailPayload struct {
	User    userDetailUser `json:"user"`
	Profile struct {
		TotalIllusts int `json:"total_illusts"`
	} `json:"profile"`
}

type userDetailUser struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Account          string `json:"account"`
	Comment          string `json:"comment"`
	ProfileImageURLs struct {
		Medium string `json:"medium"`
	} `json:"profile_image_urls"`
}
