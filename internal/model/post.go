package model

type Post struct {
	BaseModel
	OrgID    uint   `gorm:"index;not null" json:"org_id"`
	AuthorID uint   `gorm:"index;not null" json:"author_id"`
	Title    string `gorm:"size:255;not null" json:"title"`
	Body     string `gorm:"type:text" json:"body"`

	// draft, published
	Status string `gorm:"size:20;default:'published';index" json:"status"`
}
