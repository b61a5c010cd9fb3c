package marketplace

import "github.com/bytedance/sonic"

// Plugin is one marketplace listing, shaped for the launcher UI.
type Plugin struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Description   string   `json:"description"`
	Author        string   `json:"author"`
	Tags          []string `json:"tags"`
	Homepage      string   `json:"homepage,omitempty"`
	Score         float64  `json:"score"`
	LatestVersion string   `json:"latestVersion"`
}

// Page is one page of marketplace listings.
type Page struct {
	Plugins  []Plugin `json:"plugins"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
	HasMore  bool     `json:"hasMore"`
}

// npm search API response shapes. Only the fields we read.

type npmSearchResponse struct {
	Objects []npmSearchObject `json:"objects"`
	Total   int               `json:"total"`
}

type npmSearchObject struct {
	Package npmPackage `json:"package"`
	Score   npmScore   `json:"score"`
}

type npmPackage struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords"`
	Author      npmAuthor `json:"author"`
	Links       npmLinks  `json:"links"`
}

type npmScore struct {
	Final float64 `json:"final"`
}

type npmLinks struct {
	Homepage string `json:"homepage"`
}

// npmAuthor tolerates both the string and object forms npm publishes.
type npmAuthor struct {
	Name string
}

func (a *npmAuthor) UnmarshalJSON(data []byte) error {
	var s string
	if err := sonic.Unmarshal(data, &s); err == nil {
		a.Name = s
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := sonic.Unmarshal(data, &obj); err != nil {
		// Leave the author empty rather than failing the whole page.
		a.Name = ""
		return nil
	}
	a.Name = obj.Name
	return nil
}
