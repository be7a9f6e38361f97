package model

// KnowledgeCard is a reusable unit of past experience used as relevance input.
type KnowledgeCard struct {
	ID           string   `yaml:"id" json:"id" validate:"required"`
	Title        string   `yaml:"title" json:"title" validate:"required"`
	Technologies []string `yaml:"technologies" json:"technologies"`
	Domains      []string `yaml:"domains" json:"domains"`
}

// Skill is a canonical entry of the user's skill inventory.
type Skill struct {
	ID             string   `yaml:"id" json:"id" validate:"required"`
	CanonicalName  string   `yaml:"name" json:"name" validate:"required"`
	Category       string   `yaml:"category" json:"category"`
	AlternateNames []string `yaml:"alternate_names" json:"alternate_names"`
}

// CardIDs returns card identifiers in input order.
func CardIDs(cards []KnowledgeCard) []string {
	ids := make([]string, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	return ids
}
