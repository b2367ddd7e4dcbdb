package catalog

// Platform filters the catalog by platform.
type Platform string

// Supported platforms.
const (
	PlatformPC      Platform = "pc"
	PlatformBrowser Platform = "browser"
	PlatformAll     Platform = "all"
)

// SortBy orders the catalog.
type SortBy string

// Supported sort orders.
const (
	SortRelevance    SortBy = "relevance"
	SortReleaseDate  SortBy = "release-date"
	SortPopularity   SortBy = "popularity"
	SortAlphabetical SortBy = "alphabetical"
)

// GameListItem is a game as returned by the catalog listing.
type GameListItem struct {
	ID               int    `json:"id"`
	Title            string `json:"title"`
	Thumbnail        string `json:"thumbnail"`
	ShortDescription string `json:"short_description"`
	GameURL          string `json:"game_url"`
	Genre            string `json:"genre"`
	Platform         string `json:"platform"`
	Publisher        string `json:"publisher,omitempty"`
	Developer        string `json:"developer,omitempty"`
	ReleaseDate      string `json:"release_date,omitempty"`
}

// GameScreenshot is one image of a game's gallery.
type GameScreenshot struct {
	ID    int    `json:"id"`
	Image string `json:"image"`
}

// SystemRequirements lists the minimum hardware for a game.
type SystemRequirements struct {
	OS        string `json:"os,omitempty"`
	Processor string `json:"processor,omitempty"`
	Memory    string `json:"memory,omitempty"`
	Graphics  string `json:"graphics,omitempty"`
	Storage   string `json:"storage,omitempty"`
}

// GameDetail is the full record of a single game.
type GameDetail struct {
	GameListItem
	Status                    string              `json:"status,omitempty"`
	Description               string              `json:"description,omitempty"`
	ProfileURL                string              `json:"freetogame_profile_url,omitempty"`
	Screenshots               []GameScreenshot    `json:"screenshots,omitempty"`
	MinimumSystemRequirements *SystemRequirements `json:"minimum_system_requirements,omitempty"`
}

// GameList is one page of the catalog. Total is the size of the whole
// filtered catalog.
type GameList struct {
	Items []GameListItem `json:"items"`
	Total int            `json:"total"`
}
