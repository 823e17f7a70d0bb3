package utils

// Embed colours.
const (
	ColorBlurple = 0x5865F2
	ColorGreen   = 0x57F287
)
