package verify

import (
	"strings"

	"github.com/3leaps/toolup/internal/model"
)

// TemplateContext supplies values for {{...}} placeholders in candidate names.
type TemplateContext struct {
	AssetName  string
	BaseName   string
	BinaryName string
	GOOS       string
	GOARCH     string
	// Tag is the release tag; Version is the tag without its "v" prefix.
	Tag     string
	Version string
}

// NewTemplateContext builds the context for a selected asset.
func NewTemplateContext(asset, binary string, platform model.Platform, archiveExts []string) TemplateContext {
	return TemplateContext{
		AssetName:  asset,
		BaseName:   trimKnownExtension(asset, archiveExts),
		BinaryName: binary,
		GOOS:       platform.OS,
		GOARCH:     platform.Arch,
	}
}

// RenderTemplate substitutes placeholders in tpl.
func RenderTemplate(tpl string, ctx TemplateContext) string {
	return strings.NewReplacer(
		"{{asset}}", ctx.AssetName,
		"{{base}}", ctx.BaseName,
		"{{binary}}", ctx.BinaryName,
		"{{versionNoPrefix}}", ctx.Version,
		"{{version}}", ctx.Tag,
		"{{goos}}", ctx.GOOS,
		"{{GOOS}}", strings.ToUpper(ctx.GOOS),
		"{{Goos}}", titleCase(ctx.GOOS),
		"{{goarch}}", ctx.GOARCH,
		"{{GOARCH}}", strings.ToUpper(ctx.GOARCH),
		"{{Goarch}}", titleCase(ctx.GOARCH),
	).Replace(tpl)
}

// FindAssetByTemplates returns the first asset whose name equals a rendered template.
func FindAssetByTemplates(assets []model.Asset, ctx TemplateContext, templates []string) *model.Asset {
	for _, tpl := range templates {
		name := RenderTemplate(tpl, ctx)
		if name == "" {
			continue
		}
		for i := range assets {
			if assets[i].Name == name {
				return &assets[i]
			}
		}
	}
	return nil
}

// FindChecksumAsset locates the checksum file published for ctx.AssetName.
func FindChecksumAsset(assets []model.Asset, ctx TemplateContext, templates []string) *model.Asset {
	if asset := FindAssetByTemplates(assets, ctx, templates); asset != nil {
		return asset
	}
	return findAssetByKeywords(assets, ctx.AssetName, [][]string{
		{ctx.AssetName, "sha256"},
		{ctx.AssetName, "sha512"},
		{"sha256sums"},
		{"checksums"},
	})
}

// Signature is a detached minisign signature asset and what it signs.
type Signature struct {
	Asset *model.Asset
	// Covers is the name of the signed asset: the artifact or its checksum file.
	Covers string
}

// FindSignature prefers a signature over the checksum file when one exists
// for checksumName, then falls back to a per-artifact signature.
func FindSignature(assets []model.Asset, ctx TemplateContext, checksumName string, checksumSigTemplates, sigTemplates []string) (Signature, bool) {
	if checksumName != "" {
		for _, tpl := range checksumSigTemplates {
			name := RenderTemplate(tpl, ctx)
			if strings.TrimSuffix(name, ".minisig") != checksumName {
				continue
			}
			if a := findByName(assets, name); a != nil {
				return Signature{Asset: a, Covers: checksumName}, true
			}
		}
	}
	for _, tpl := range sigTemplates {
		name := RenderTemplate(tpl, ctx)
		if !strings.HasSuffix(name, ".minisig") {
			continue
		}
		if a := findByName(assets, name); a != nil {
			return Signature{Asset: a, Covers: ctx.AssetName}, true
		}
	}
	return Signature{}, false
}

func findByName(assets []model.Asset, name string) *model.Asset {
	for i := range assets {
		if assets[i].Name == name {
			return &assets[i]
		}
	}
	return nil
}

func findAssetByKeywords(assets []model.Asset, skip string, groups [][]string) *model.Asset {
	for _, group := range groups {
		keywords := make([]string, 0, len(group))
		for _, kw := range group {
			if kw != "" {
				keywords = append(keywords, strings.ToLower(kw))
			}
		}
		if len(keywords) == 0 {
			continue
		}
		for i := range assets {
			if assets[i].Name == skip {
				continue
			}
			lower := strings.ToLower(assets[i].Name)
			if strings.HasSuffix(lower, ".minisig") || strings.HasSuffix(lower, ".asc") || strings.HasSuffix(lower, ".sig") {
				continue
			}
			if containsAll(lower, keywords) {
				return &assets[i]
			}
		}
	}
	return nil
}

func containsAll(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(haystack, kw) {
			return false
		}
	}
	return true
}

func trimKnownExtension(name string, exts []string) string {
	for _, ext := range exts {
		if ext == "" {
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
