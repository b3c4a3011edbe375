package pagetrack

import "embed"

// EmbeddedAssets contains static assets shipped with the service:
// track.js, the browser snippet that reports page views and clicks.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
