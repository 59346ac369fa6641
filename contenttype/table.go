package contenttype

// Common MIME types
const (
	OctetStream     = "application/octet-stream"
	ApplicationJSON = "application/json"
	ApplicationOGG  = "application/ogg"
	TextHTML        = "text/html"
	TextPlain       = "text/plain"
	TextCSS         = "text/css"
	TextJavaScript  = "text/javascript"
)

// defaultTable maps lower-case suffixes (without the leading dot) to MIME
// types. Multi-part suffixes such as "tar.gz" win over their last part.
var defaultTable = map[string]string{
	// text and web
	"html":        TextHTML,
	"htm":         TextHTML,
	"shtml":       TextHTML,
	"xhtml":       "application/xhtml+xml",
	"css":         TextCSS,
	"js":          TextJavaScript,
	"mjs":         TextJavaScript,
	"cjs":         TextJavaScript,
	"jsx":         "text/jsx",
	"ts":          "video/mp2t",
	"json":        ApplicationJSON,
	"map":         ApplicationJSON,
	"jsonld":      "application/ld+json",
	"webmanifest": "application/manifest+json",
	"xml":         "application/xml",
	"xsl":         "application/xml",
	"txt":         TextPlain,
	"text":        TextPlain,
	"log":         TextPlain,
	"conf":        TextPlain,
	"ini":         TextPlain,
	"csv":         "text/csv",
	"tsv":         "text/tab-separated-values",
	"md":          "text/markdown",
	"markdown":    "text/markdown",
	"rtf":         "text/rtf",
	"yaml":        "text/yaml",
	"yml":         "text/yaml",
	"less":        "text/less",
	"scss":        "text/x-scss",
	"sass":        "text/x-sass",
	"vtt":         "text/vtt",
	"appcache":    "text/cache-manifest",
	"ics":         "text/calendar",
	"php":         "application/x-httpd-php",
	"wasm":        "application/wasm",

	// images
	"png":  "image/png",
	"apng": "image/apng",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"jpe":  "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"avif": "image/avif",
	"svg":  "image/svg+xml",
	"svgz": "image/svg+xml",
	"ico":  "image/x-icon",
	"cur":  "image/x-icon",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"heic": "image/heic",
	"heif": "image/heif",
	"psd":  "image/vnd.adobe.photoshop",

	// audio
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"wav":  "audio/wav",
	"oga":  "audio/ogg",
	"opus": "audio/ogg",
	"flac": "audio/flac",
	"mid":  "audio/midi",
	"midi": "audio/midi",
	"weba": "audio/webm",

	// video
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"webm": "video/webm",
	"ogv":  "video/ogg",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
	"mpeg": "video/mpeg",
	"mpg":  "video/mpeg",
	"3gp":  "video/3gpp",
	"ogg":  ApplicationOGG,
	"ogx":  ApplicationOGG,

	// fonts
	"woff":  "font/woff",
	"woff2": "font/woff2",
	"ttf":   "font/ttf",
	"otf":   "font/otf",
	"eot":   "application/vnd.ms-fontobject",

	// documents and archives
	"pdf":    "application/pdf",
	"doc":    "application/msword",
	"docx":   "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":    "application/vnd.ms-excel",
	"xlsx":   "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":    "application/vnd.ms-powerpoint",
	"pptx":   "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"odt":    "application/vnd.oasis.opendocument.text",
	"epub":   "application/epub+zip",
	"zip":    "application/zip",
	"gz":     "application/gzip",
	"tgz":    "application/gzip",
	"tar":    "application/x-tar",
	"tar.gz": "application/gzip",
	"bz2":    "application/x-bzip2",
	"7z":     "application/x-7z-compressed",
	"rar":    "application/vnd.rar",
	"jar":    "application/java-archive",
	"swf":    "application/x-shockwave-flash",
}
