package web

import (
	"embed"
)

// static holds the embedded HTML, CSS, and JS of the conversion page.
//
//go:embed static/*
var staticFiles embed.FS
