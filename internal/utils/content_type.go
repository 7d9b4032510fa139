package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

func GetFileExtensionFromContentType(contentType string) string {
	contentType = strings.ToLower(contentType)

	switch {
	case strings.Contains(contentType, "jpeg") || strings.Contains(contentType, "jpg"):
		return "jpg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "pdf"):
		return "pdf"
	case strings.Contains(contentType, "wordprocessingml"):
		return "docx"
	case strings.Contains(contentType, "msword"):
		return "doc"
	case strings.Contains(contentType, "opendocument.text"):
		return "odt"
	case strings.Contains(contentType, "spreadsheetml") || strings.Contains(contentType, "excel"):
		return "xlsx"
	case strings.Contains(contentType, "presentationml") || strings.Contains(contentType, "powerpoint"):
		return "pptx"
	case strings.Contains(contentType, "text/plain"):
		return "txt"
	case strings.Contains(contentType, "html"):
		return "html"
	case strings.Contains(contentType, "webp"):
		return "webp"
	case strings.Contains(contentType, "tiff"):
		return "tiff"
	case strings.Contains(contentType, "bmp"):
		return "bmp"
	case strings.Contains(contentType, "csv"):
		return "csv"
	case strings.Contains(contentType, "rtf"):
		return "rtf"
	case strings.Contains(contentType, "zip"):
		return "zip"
	default:
		return "bin"
	}
}

var extensionContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
	".odt":  "application/vnd.oasis.opendocument.text",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".rtf":  "application/rtf",
	".txt":  "text/plain",
	".html": "text/html",
	".htm":  "text/html",
	".xml":  "text/xml",
}

// ContentTypeFromFilename resolves a MIME type from the file extension, falling
// back to the platform mime table and finally application/octet-stream.
func ContentTypeFromFilename(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := extensionContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}

// MediaType strips parameters and lowercases a Content-Type header value.
func MediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType
}

func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(MediaType(contentType), "image/")
}

const ContentTypePDF = "application/pdf"

func IsPDFContentType(contentType string) bool {
	return MediaType(contentType) == ContentTypePDF
}

// IsProcessableContentType reports whether the pipeline stores items of this type.
func IsProcessableContentType(contentType string) bool {
	mt := MediaType(contentType)
	if IsPDFContentType(mt) || IsImageContentType(mt) {
		return true
	}
	for _, ct := range extensionContentTypes {
		if ct == mt && !strings.HasPrefix(mt, "text/") {
			return true
		}
	}
	return false
}
