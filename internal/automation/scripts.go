package automation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
)

const (
	// DefaultPageURL is the liquidation heatmap page driven by every capture.
	DefaultPageURL = "https://www.coinglass.com/pro/futures/LiquidationHeatMap"

	// PeriodSelector is the time-period dropdown button.
	PeriodSelector = "div.MuiSelect-root button.MuiSelect-button"
	// HeatmapSelector is the chart container captured by the screenshot step.
	HeatmapSelector = "div.echarts-for-react"

	ScreenshotWidth  = 1200
	ScreenshotHeight = 800

	// defaultSymbol is the page's initial symbol; no switch is needed for it.
	defaultSymbol = "BTC"

	// DefaultSettle is the chart redraw wait used when none is configured.
	DefaultSettle = 5 * time.Second

	minSettle    = 50 * time.Millisecond
	pollInterval = 100 * time.Millisecond
)

// ScriptBudget is the longest SelectScript can run for settle: the symbol
// input wait (2x), the typing pause (1/5x), the option wait (1x), two redraw
// sleeps (2x) and one poll overshoot per wait.
func ScriptBudget(settle time.Duration) time.Duration {
	return 5*settle + settle/5 + 2*pollInterval
}

// SettleFor lowers settle until ScriptBudget fits in 90% of stepTimeout. It
// never raises a settle that already fits.
func SettleFor(stepTimeout, settle time.Duration) time.Duration {
	if settle <= 0 {
		settle = DefaultSettle
	}
	limit := (stepTimeout*9/10 - 2*pollInterval) * 5 / 26
	if limit < minSettle {
		limit = minSettle
	}
	if settle > limit {
		return limit
	}
	return settle
}

// ScreenshotName is the artifact name requested from the automation service.
func ScreenshotName(req heatmap.Request) string {
	return fmt.Sprintf("%s_heatmap_%s", strings.ToLower(req.Symbol()), req.Period().Slug())
}

// SelectScript switches the page to the request's symbol (when not the
// default), picks the period option from the dropdown opened by the click
// step, and waits settle for the chart to redraw. Every wait in the script is
// derived from settle, so its run time is bounded by ScriptBudget(settle). It
// resolves to a JSON string describing what it did; callers keep it for
// diagnostics only.
func SelectScript(req heatmap.Request, settle time.Duration) string {
	return wrapJSEvalAsync(fmt.Sprintf(jsHelpers+`
var requestedSymbol = %s;
var requestedPeriod = %s;
var settleMs = %d;
var pollMs = %d;
var symbolChanged = false;
if (requestedSymbol !== %s) {
  var tabs = Array.prototype.slice.call(document.querySelectorAll('button[role="tab"]'));
  var tab = tabs.find(function(b){ return (b.textContent || "").trim().toLowerCase() === "symbol"; });
  if (tab) tab.click();
  var input = await _waitFor("input.MuiAutocomplete-input", settleMs * 2);
  if (input) {
    _setInput(input, requestedSymbol);
    await _sleep(Math.floor(settleMs / 5));
    input.dispatchEvent(new KeyboardEvent("keydown", {key: "Enter", bubbles: true}));
    symbolChanged = true;
    await _sleep(settleMs);
  }
}
var dropdown = document.querySelector(%s);
var current = dropdown ? (dropdown.textContent || "").trim() : "";
var periodSelected = current === requestedPeriod;
if (!periodSelected) {
  if (!document.querySelector('li[role="option"]') && dropdown) dropdown.click();
  var opt = await _waitFor('li[role="option"]', settleMs);
  if (opt) {
    var options = Array.prototype.slice.call(document.querySelectorAll('li[role="option"]'));
    var match = options.find(function(o){ return (o.textContent || "").indexOf(requestedPeriod) !== -1; });
    if (match) { match.click(); periodSelected = true; }
  }
}
await _sleep(settleMs);
var chartReady = !!document.querySelector(%s);
return JSON.stringify({ok: chartReady, data: {symbol_changed: symbolChanged, period_selected: periodSelected, chart_ready: chartReady}});
`, jsString(req.Symbol()), jsString(string(req.Period())), settle.Milliseconds(), pollInterval.Milliseconds(), jsString(defaultSymbol),
		jsString(PeriodSelector), jsString(HeatmapSelector)))
}

const jsHelpers = `
function _sleep(ms) { return new Promise(function(r){ setTimeout(r, ms); }); }
async function _waitFor(sel, timeoutMs) {
  var start = Date.now();
  while (Date.now() - start < timeoutMs) {
    var el = document.querySelector(sel);
    if (el) return el;
    await _sleep(pollMs);
  }
  return null;
}
function _setInput(input, value) {
  var desc = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, "value");
  if (desc && desc.set) desc.set.call(input, value); else input.value = value;
  input.dispatchEvent(new Event("input", {bubbles: true}));
}
`

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func wrapJSEvalAsync(body string) string {
	return `(async function(){
try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_message:String(err && err.message || err)});
}
})()`
}
