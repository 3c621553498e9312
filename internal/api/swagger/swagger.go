// Package swagger serves the API documentation page and its embedded
// OpenAPI document under /docs/.
package swagger

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.yaml
var document []byte

// Handler serves the Swagger UI page at the mount root and the OpenAPI
// document it loads at /openapi.yaml.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi.yaml", serveDocument)
	mux.HandleFunc("/", servePage)
	return mux
}

func serveDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(document)
}

func servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// The UI itself comes from the swagger-ui-dist CDN build; only the page
// shell is served locally.
const page = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Enever Price Adapter API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css">
  <style>
    body { margin: 0; }
    .swagger-ui .topbar { display: none; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      window.ui = SwaggerUIBundle({
        url: "/docs/openapi.yaml",
        dom_id: "#swagger-ui",
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis],
        docExpansion: "list",
        filter: true
      });
    };
  </script>
</body>
</html>
`
