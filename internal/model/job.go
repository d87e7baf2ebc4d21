package model

// Job は外部求人検索の結果を正規化した形式。
// IDは検索ソース名を接頭辞に持ち、ソースをまたいで一意となる。
type Job struct {
	ID       string   `json:"id"`
	Company  string   `json:"company"`
	Position string   `json:"position"`
	Tags     []string `json:"tags"`
	Location string   `json:"location"`
	URL      string   `json:"url"`
}
