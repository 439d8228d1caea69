package blobstore

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ImageRef records one image reference found while localizing markdown.
type ImageRef struct {
	// Path is the rewritten store-relative reference ("images/<hash><ext>")
	// when the image was stored, or the cleaned original target otherwise.
	Path   string
	Hash   string
	Status string // "stored", "missing", or "error"
	Err    string
}

var (
	mdImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
	dataURLRe = regexp.MustCompile(`(?s)^data:([^;,]+)(;base64)?,(.*)$`)
	imgTagRe  = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	srcAttrRe = regexp.MustCompile(`(?is)\bsrc\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
)

var imageExtByMime = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
	"image/avif":    ".avif",
}

// LocalizeMarkdown content-addresses every image a markdown payload embeds
// or references and rewrites the references to "images/<hash><ext>". Base64
// data URLs are decoded and stored; local file references are resolved
// against baseDir and copied in. Remote URLs, unresolvable references, and
// non-image data URLs are left untouched.
func (s *Store) LocalizeMarkdown(markdown []byte, baseDir string) ([]byte, []ImageRef) {
	var refs []ImageRef

	storeBytes := func(mime string, data []byte) string {
		ext, ok := imageExtByMime[strings.ToLower(strings.TrimSpace(mime))]
		if !ok {
			return ""
		}
		hash, err := s.PutImage(data, ext)
		if err != nil {
			refs = append(refs, ImageRef{Status: "error", Err: err.Error()})
			return ""
		}
		rel := "images/" + hash + ext
		refs = append(refs, ImageRef{Path: rel, Hash: hash, Status: "stored"})
		return rel
	}

	storeLocal := func(target string) string {
		cleaned := strings.TrimSpace(target)
		for strings.HasPrefix(cleaned, "../") {
			cleaned = cleaned[3:]
		}
		cleaned = strings.ReplaceAll(cleaned, "\\", "/")
		cleaned = strings.TrimLeft(cleaned, "./")
		data, err := os.ReadFile(filepath.Join(baseDir, filepath.FromSlash(cleaned)))
		if err != nil {
			refs = append(refs, ImageRef{Path: cleaned, Status: "missing"})
			return ""
		}
		ext := strings.ToLower(filepath.Ext(cleaned))
		hash, err := s.PutImage(data, ext)
		if err != nil {
			refs = append(refs, ImageRef{Path: cleaned, Status: "error", Err: err.Error()})
			return ""
		}
		rel := "images/" + hash + ext
		refs = append(refs, ImageRef{Path: rel, Hash: hash, Status: "stored"})
		return rel
	}

	rewriteTarget := func(target string) string {
		if mime, data, ok := parseImageDataURL(target); ok {
			return storeBytes(mime, data)
		}
		if target == "" || isAbsoluteURL(target) {
			return ""
		}
		return storeLocal(target)
	}

	out := mdImageRe.ReplaceAllStringFunc(string(markdown), func(m string) string {
		groups := mdImageRe.FindStringSubmatch(m)
		alt, rawLink := groups[1], groups[2]
		target, suffix, prefix, postfix := splitLinkTarget(rawLink)
		rel := rewriteTarget(target)
		if rel == "" {
			return m
		}
		return "![" + alt + "](" + prefix + rel + postfix + suffix + ")"
	})

	out = imgTagRe.ReplaceAllStringFunc(out, func(tag string) string {
		loc := srcAttrRe.FindStringSubmatchIndex(tag)
		if loc == nil {
			return tag
		}
		raw := tag[loc[2]:loc[3]]
		quote, value := "", raw
		if len(raw) > 1 && (raw[0] == '"' || raw[0] == '\'') {
			quote = string(raw[0])
			value = raw[1 : len(raw)-1]
		}
		rel := rewriteTarget(value)
		if rel == "" {
			return tag
		}
		return tag[:loc[2]] + quote + rel + quote + tag[loc[3]:]
	})

	return []byte(out), refs
}

// parseImageDataURL decodes a base64 image data URL. Non-image MIME types
// and non-base64 payloads report ok=false so callers leave them alone.
func parseImageDataURL(target string) (mime string, data []byte, ok bool) {
	m := dataURLRe.FindStringSubmatch(target)
	if m == nil {
		return "", nil, false
	}
	mime = m[1]
	if !strings.HasPrefix(mime, "image/") || m[2] != ";base64" {
		return "", nil, false
	}
	payload := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, m[3])
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	return mime, data, true
}

func isAbsoluteURL(target string) bool {
	lowered := strings.ToLower(target)
	for _, prefix := range []string{"http://", "https://", "data:", "mailto:", "file:", "#"} {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return strings.HasPrefix(target, "/")
}

// splitLinkTarget separates a markdown link body into the target and
// whatever follows it (a title, or the closing of an angle-bracket link).
func splitLinkTarget(rawLink string) (target, suffix, prefix, postfix string) {
	link := strings.TrimSpace(rawLink)
	if strings.HasPrefix(link, "<") {
		if end := strings.Index(link, ">"); end != -1 {
			return link[1:end], link[end+1:], "<", ">"
		}
	}
	fields := strings.Fields(link)
	if len(fields) == 0 {
		return "", "", "", ""
	}
	target = fields[0]
	return target, link[len(target):], "", ""
}
