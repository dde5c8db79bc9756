// Package stealth generates per-session browser identities: a consistent
// fingerprint, proxy rotation, adaptive request pacing, and human-like
// page interaction.
package stealth

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Real-world screen resolutions
var screenResolutions = [][2]int{
	{1920, 1080}, {1366, 768}, {1536, 864}, {1440, 900},
	{1280, 720}, {1600, 900}, {2560, 1440}, {1280, 800},
	{1680, 1050}, {1360, 768}, {1920, 1200}, {2560, 1080},
}

// Windows Chrome user agents, recent versions
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 11.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 11.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

var languageSets = [][]string{
	{"en-US", "en"},
	{"en-GB", "en"},
	{"en-IN", "en"},
}

// Timezone names with their getTimezoneOffset values in minutes
var timezoneCatalog = []struct {
	Name   string
	Offset int
}{
	{"Asia/Kolkata", -330},
	{"America/New_York", 300},
	{"America/Los_Angeles", 480},
	{"Europe/London", 0},
}

// Real GPU vendor/renderer combinations
var webglCatalog = []struct {
	Vendor   string
	Renderer string
}{
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1650 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 580 Series Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) Iris(R) Xe Graphics Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 2070 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
}

var (
	concurrencyChoices = []int{4, 6, 8, 12, 16}
	memoryChoices      = []int{4, 8, 16, 32}
	colorDepthChoices  = []int{24, 32}
	pixelRatioChoices  = []float64{1, 1.25, 1.5, 2}
)

// Fingerprint is a complete browser identity for one session. Every value
// is drawn once from the seeded stream and stays fixed until rotation, so
// all pages in the session present the same device.
type Fingerprint struct {
	Seed int64

	ScreenWidth  int
	ScreenHeight int
	WindowWidth  int
	WindowHeight int
	ColorDepth   int
	PixelRatio   float64

	UserAgent           string
	Languages           []string
	TimezoneName        string
	TimezoneOffset      int
	WebGLVendor         string
	WebGLRenderer       string
	HardwareConcurrency int
	DeviceMemory        int
	Platform            string

	CanvasNoise float64
	AudioNoise  float64

	CanvasHash string
	WebGLHash  string
	AudioHash  string
}

// NewFingerprint generates a fingerprint from the given seed. A seed of 0
// derives one from the wall clock, matching the unseeded default.
func NewFingerprint(seed int64) *Fingerprint {
	if seed == 0 {
		seed = time.Now().UnixMilli()
	}

	rng := rand.New(rand.NewSource(seed))

	res := screenResolutions[rng.Intn(len(screenResolutions))]
	tz := timezoneCatalog[rng.Intn(len(timezoneCatalog))]
	gl := webglCatalog[rng.Intn(len(webglCatalog))]

	fp := &Fingerprint{
		Seed:         seed,
		ScreenWidth:  res[0],
		ScreenHeight: res[1],
		ColorDepth:   colorDepthChoices[rng.Intn(len(colorDepthChoices))],
		PixelRatio:   pixelRatioChoices[rng.Intn(len(pixelRatioChoices))],

		UserAgent:           userAgents[rng.Intn(len(userAgents))],
		Languages:           languageSets[rng.Intn(len(languageSets))],
		TimezoneName:        tz.Name,
		TimezoneOffset:      tz.Offset,
		WebGLVendor:         gl.Vendor,
		WebGLRenderer:       gl.Renderer,
		HardwareConcurrency: concurrencyChoices[rng.Intn(len(concurrencyChoices))],
		DeviceMemory:        memoryChoices[rng.Intn(len(memoryChoices))],
		Platform:            "Win32",

		CanvasNoise: rng.Float64()*0.0002 - 0.0001,
		AudioNoise:  rng.Float64()*0.0002 - 0.0001,
	}

	// Window slightly smaller than screen, like a real maximized browser
	fp.WindowWidth = fp.ScreenWidth - rng.Intn(101)
	fp.WindowHeight = fp.ScreenHeight - (60 + rng.Intn(91))

	base := fmt.Sprintf("%d-%s-%d", fp.Seed, fp.UserAgent, fp.ScreenWidth)
	fp.CanvasHash = shortHash("canvas-" + base)
	fp.WebGLHash = shortHash("webgl-" + base)
	fp.AudioHash = shortHash("audio-" + base)

	return fp
}

func shortHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// ChromeFlags returns launch flags that must match the injected values.
// Keys are flag names without leading dashes.
func (fp *Fingerprint) ChromeFlags() map[string]string {
	return map[string]string{
		"window-size": fmt.Sprintf("%d,%d", fp.WindowWidth, fp.WindowHeight),
		"lang":        fp.Languages[0],
	}
}

// LogSummary writes the identity's headline values at info level
func (fp *Fingerprint) LogSummary(logger zerolog.Logger) {
	logger.Info().
		Int64("seed", fp.Seed).
		Str("screen", fmt.Sprintf("%dx%d", fp.ScreenWidth, fp.ScreenHeight)).
		Str("userAgent", truncate(fp.UserAgent, 50)).
		Str("language", fp.Languages[0]).
		Str("timezone", fp.TimezoneName).
		Str("webglVendor", fp.WebGLVendor).
		Int("cores", fp.HardwareConcurrency).
		Str("memory", fmt.Sprintf("%dGB", fp.DeviceMemory)).
		Str("canvasHash", fp.CanvasHash).
		Msg("Fingerprint generated")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// InjectionScript returns JavaScript that overrides the fingerprinting
// surfaces to present this identity. Must be installed before any page
// script runs.
func (fp *Fingerprint) InjectionScript() string {
	langList := fmt.Sprintf("['%s', '%s']", fp.Languages[0], fp.Languages[1])

	return fmt.Sprintf(`
(function() {
	'use strict';

	const originalToDataURL = HTMLCanvasElement.prototype.toDataURL;
	const originalToBlob = HTMLCanvasElement.prototype.toBlob;
	const originalGetImageData = CanvasRenderingContext2D.prototype.getImageData;

	// Navigator
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'platform', { get: () => '%s' });
	Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
	Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
	Object.defineProperty(navigator, 'languages', { get: () => %s });
	Object.defineProperty(navigator, 'language', { get: () => '%s' });

	// Screen
	Object.defineProperty(screen, 'width', { get: () => %d });
	Object.defineProperty(screen, 'height', { get: () => %d });
	Object.defineProperty(screen, 'availWidth', { get: () => %d });
	Object.defineProperty(screen, 'availHeight', { get: () => %d });
	Object.defineProperty(screen, 'colorDepth', { get: () => %d });
	Object.defineProperty(screen, 'pixelDepth', { get: () => %d });
	Object.defineProperty(window, 'devicePixelRatio', { get: () => %g });

	// Timezone
	const originalDateTimeFormat = Intl.DateTimeFormat;
	Intl.DateTimeFormat = function(locales, options) {
		options = options || {};
		options.timeZone = options.timeZone || '%s';
		return new originalDateTimeFormat(locales, options);
	};
	Intl.DateTimeFormat.prototype = originalDateTimeFormat.prototype;
	Date.prototype.getTimezoneOffset = function() { return %d; };

	// Canvas noise, consistent within the session
	const canvasNoise = %g;
	function addCanvasNoise(canvas) {
		const ctx = canvas.getContext('2d');
		if (!ctx) return;
		try {
			const imageData = originalGetImageData.call(ctx, 0, 0, canvas.width, canvas.height);
			const data = imageData.data;
			for (let i = 0; i < data.length; i += 4) {
				if ((i / 4) %% 100 === 0) {
					data[i] = Math.max(0, Math.min(255, data[i] + (canvasNoise * 255)));
				}
			}
			ctx.putImageData(imageData, 0, 0);
		} catch(e) {}
	}
	HTMLCanvasElement.prototype.toDataURL = function(...args) {
		addCanvasNoise(this);
		return originalToDataURL.apply(this, args);
	};
	HTMLCanvasElement.prototype.toBlob = function(...args) {
		addCanvasNoise(this);
		return originalToBlob.apply(this, args);
	};

	// WebGL vendor/renderer
	const webglVendor = '%s';
	const webglRenderer = '%s';
	const getParameterProxy = new Proxy(WebGLRenderingContext.prototype.getParameter, {
		apply: function(target, thisArg, args) {
			const param = args[0];
			if (param === 37445) { return webglVendor; }
			if (param === 37446) { return webglRenderer; }
			return Reflect.apply(target, thisArg, args);
		}
	});
	WebGLRenderingContext.prototype.getParameter = getParameterProxy;
	if (typeof WebGL2RenderingContext !== 'undefined') {
		WebGL2RenderingContext.prototype.getParameter = getParameterProxy;
	}

	// Audio noise
	const audioNoise = %g;
	if (typeof AudioContext !== 'undefined') {
		const originalCreateAnalyser = AudioContext.prototype.createAnalyser;
		AudioContext.prototype.createAnalyser = function() {
			const analyser = originalCreateAnalyser.apply(this, arguments);
			const originalGetFloatFrequencyData = analyser.getFloatFrequencyData.bind(analyser);
			analyser.getFloatFrequencyData = function(array) {
				originalGetFloatFrequencyData(array);
				for (let i = 0; i < array.length; i++) {
					array[i] += audioNoise;
				}
			};
			return analyser;
		};
	}

	// Plugins
	Object.defineProperty(navigator, 'plugins', {
		get: () => {
			const plugins = [
				{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
				{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
				{ name: 'Native Client', filename: 'internal-nacl-plugin', description: '' }
			];
			plugins.length = 3;
			return plugins;
		}
	});

	// Permissions
	const originalQuery = navigator.permissions.query;
	navigator.permissions.query = (parameters) => {
		if (parameters.name === 'notifications') {
			return Promise.resolve({ state: Notification.permission });
		}
		return originalQuery(parameters);
	};

	// Chrome runtime object
	window.chrome = window.chrome || {};
	window.chrome.runtime = window.chrome.runtime || {};

	// Remove driver globals
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Array;
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Promise;
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol;

	const nativeToString = Function.prototype.toString;
	Function.prototype.toString = function() {
		if (this === navigator.permissions.query) {
			return 'function query() { [native code] }';
		}
		return nativeToString.call(this);
	};
})();
`,
		fp.Platform,
		fp.HardwareConcurrency,
		fp.DeviceMemory,
		langList,
		fp.Languages[0],
		fp.ScreenWidth,
		fp.ScreenHeight,
		fp.ScreenWidth,
		fp.ScreenHeight-40,
		fp.ColorDepth,
		fp.ColorDepth,
		fp.PixelRatio,
		fp.TimezoneName,
		fp.TimezoneOffset,
		fp.CanvasNoise,
		fp.WebGLVendor,
		fp.WebGLRenderer,
		fp.AudioNoise,
	)
}
