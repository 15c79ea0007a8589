package main

import (
	_ "embed"
	"html/template"
	"sync"

	"github.com/rs/zerolog/log"
)

//go:embed www/index.html
var indexTemplateEmbed string

//go:embed www/jsgpio-client.js
var clientScriptEmbed []byte

var (
	indexTemplate     *template.Template
	indexTemplateErr  error
	indexTemplateOnce sync.Once
)

func GetIndexTemplate() (*template.Template, error) {
	indexTemplateOnce.Do(func() {
		log.Debug().Msg("Caching embedded index.html")
		indexTemplate, indexTemplateErr = template.New("index.html").Parse(indexTemplateEmbed)
	})
	return indexTemplate, indexTemplateErr
}
