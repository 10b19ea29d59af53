// Package upload validates and stores the business assets referenced by a
// generation request: logos, product and hero images, and PDF catalogs.
package upload

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/raysh454/sitegen/internal/apperr"
)

// AssetType selects the validation rules and folder of an upload.
type AssetType string

const (
	AssetLogo         AssetType = "logo"
	AssetProductImage AssetType = "product_image"
	AssetHeroImage    AssetType = "hero_image"
	AssetCatalog      AssetType = "catalog"
)

const (
	imageLimit   = 5 << 20
	catalogLimit = 10 << 20
)

type assetRule struct {
	folder   string
	maxBytes int64
	// extension → content type
	types map[string]string
}

var (
	rasterTypes = map[string]string{
		"png":  "image/png",
		"jpg":  "image/jpeg",
		"jpeg": "image/jpeg",
		"webp": "image/webp",
	}
	logoTypes = map[string]string{
		"png":  "image/png",
		"jpg":  "image/jpeg",
		"jpeg": "image/jpeg",
		"webp": "image/webp",
		"svg":  "image/svg+xml",
	}
	pdfTypes = map[string]string{"pdf": "application/pdf"}
)

var rules = map[AssetType]assetRule{
	AssetLogo:         {folder: "logos/", maxBytes: imageLimit, types: logoTypes},
	AssetProductImage: {folder: "products/", maxBytes: imageLimit, types: rasterTypes},
	AssetHeroImage:    {folder: "heroes/", maxBytes: imageLimit, types: rasterTypes},
	AssetCatalog:      {folder: "catalogs/", maxBytes: catalogLimit, types: pdfTypes},
}

// AssetTypes lists every supported asset type.
func AssetTypes() []AssetType {
	out := make([]AssetType, 0, len(rules))
	for a := range rules {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseAssetType accepts the canonical names plus "product" and "hero".
func ParseAssetType(s string) (AssetType, error) {
	s = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_")))
	switch s {
	case "product":
		s = string(AssetProductImage)
	case "hero":
		s = string(AssetHeroImage)
	}
	a := AssetType(s)
	if _, ok := rules[a]; !ok {
		return "", apperr.NewInvalidInput(fmt.Sprintf("unknown asset type %q", s), nil)
	}
	return a, nil
}

// Folder is the key prefix objects of this type are stored under.
func (a AssetType) Folder() string { return rules[a].folder }

// MaxBytes is the size limit for this type.
func (a AssetType) MaxBytes() int64 { return rules[a].maxBytes }

// Extensions lists accepted file extensions.
func (a AssetType) Extensions() []string {
	var out []string
	for ext := range rules[a].types {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

// ContentType returns the MIME type for filename under asset's rules.
func ContentType(asset AssetType, filename string) (string, bool) {
	ct, ok := rules[asset].types[extension(filename)]
	return ct, ok
}

// Validate checks filename's type and size against asset's rules.
func Validate(asset AssetType, filename string, size int64) error {
	rule, ok := rules[asset]
	if !ok {
		return apperr.NewInvalidInput(fmt.Sprintf("unknown asset type %q", asset), nil)
	}
	if _, ok := rule.types[extension(filename)]; !ok {
		return apperr.NewInvalidInput(fmt.Sprintf("%s must be one of: %s",
			strings.ReplaceAll(string(asset), "_", " "), strings.Join(asset.Extensions(), ", ")), nil)
	}
	if size <= 0 {
		return apperr.NewInvalidInput("file is empty", nil)
	}
	if size > rule.maxBytes {
		return apperr.NewInvalidInput(fmt.Sprintf("file is %s; the limit is %s",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(rule.maxBytes))), nil)
	}
	return nil
}

// ObjectKey builds {folder}{unixMillis}_{random}.{ext} for filename.
func ObjectKey(asset AssetType, filename string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return fmt.Sprintf("%s%d_%s.%s", asset.Folder(), now.UnixMilli(), random, extension(filename))
}

// ValidateKey rejects keys that could escape a store's root.
func ValidateKey(key string) error {
	if key == "" {
		return apperr.NewInvalidInput("object key is required", nil)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return apperr.NewInvalidInput(fmt.Sprintf("invalid object key %q", key), nil)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return apperr.NewInvalidInput(fmt.Sprintf("invalid object key %q", key), nil)
		}
	}
	return nil
}
