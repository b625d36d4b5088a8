package models

// FileType drives how the streaming gateway resolves a delivery URL.
type FileType string

const (
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
	FileTypeArchive  FileType = "archive"
	FileTypeOther    FileType = "other"
)

// Product 产品表
type Product struct {
	BaseModel

	ProductID string `json:"product_id" gorm:"not null;size:64;uniqueIndex"`
	Name      string `json:"name" gorm:"not null;size:255"`
	Category  string `json:"category" gorm:"size:64;index"`
	IsDigital bool   `json:"is_digital" gorm:"default:false;index"`

	// Per-user download quota for this product's files. 0 means unlimited.
	MaxDownloads int64 `json:"max_downloads" gorm:"default:0"`
}

// ProductFile 产品文件表
// A preview file is readable without any entitlement.
type ProductFile struct {
	BaseModel

	FileID      string   `json:"file_id" gorm:"not null;size:64;uniqueIndex"`
	ProductID   string   `json:"product_id" gorm:"not null;size:64;index"`
	Name        string   `json:"name" gorm:"size:255"`
	FileType    FileType `json:"file_type" gorm:"size:20;default:'other'"`
	StoragePath string   `json:"storage_path" gorm:"size:500"` // object key in the asset store
	IsPreview   bool     `json:"is_preview" gorm:"default:false"`
}

// TableName 指定表名
func (ProductFile) TableName() string {
	return "product_files"
}
