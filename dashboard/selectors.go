package dashboard

import "vkads-report/screenshot"

// Selector candidate lists for the ads dashboard, most specific first. The
// dashboard ships hashed CSS-module class names, so prefix and substring
// matches come before the exact hashed names.

var searchInputs = []screenshot.Selector{
	screenshot.CSS("input[type='search']"),
	screenshot.CSS("input[placeholder*='Поиск']"),
	screenshot.CSS("input[placeholder*='поиск']"),
	screenshot.CSS("[data-testid*='search'] input"),
	screenshot.CSS(".search input"),
	screenshot.CSS("input[name*='search']"),
}

var containsMenuItem = screenshot.CSS("[data-testid='search-contains-menu-item']")

func planLinks(name string) []screenshot.Selector {
	return []screenshot.Selector{
		screenshot.HasText("[data-testid='name-link']", name),
		screenshot.HasText("a", name),
		screenshot.CSS("[data-testid='name-link']"),
		screenshot.HasText("td a", name),
	}
}

var rowContainers = []string{"tr", "[role='row']"}

var statsButtons = []string{
	"a[data-testid='stats']",
	"[data-testid='stats']",
	"button[title*='Статистика']",
	"a[title*='Статистика']",
	"svg.vkuiIcon--poll_outline_20",
	"svg[class*='poll_outline']",
	"svg[aria-label*='Статистика']",
	"button:has(svg[class*='poll_outline'])",
}

var captchaMarkers = []screenshot.Selector{
	screenshot.CSS(`input[name="captcha_key"]`),
	screenshot.CSS(".page_block_captcha"),
	screenshot.CSS(`[id*="captcha"]`),
	screenshot.Text("Я не робот"),
}

func tabButton(tab string) screenshot.Selector {
	return screenshot.CSS("#tab_" + tab)
}

var funnelCaption = []screenshot.Selector{
	screenshot.Text("Воронка конверсий"),
}

var funnelCharts = []screenshot.Selector{
	screenshot.CSS("div[class*='ConversionsChart'][class*='wrap']"),
	screenshot.CSS("div[class^='ConversionsChart_wrap']"),
	screenshot.CSS("div[class^='ConversionsChart.module_wrap']"),
	screenshot.CSS(`div.ConversionsChart\.module_wrap__XzgxY`),
}

var viewPointsContainers = []screenshot.Selector{
	screenshot.CSS("div[class*='ViewPoints'][class*='layout']"),
	screenshot.CSS(`div.ViewPoints\.module_layout__YWJjY`),
	screenshot.CSS("div[class^='ViewPoints_layout']"),
	screenshot.CSS("div[class^='ViewPoints_main']"),
}

// campaignTitles prefers the title carrying the campaign name and falls back
// to any top-line title
func campaignTitles(name string) []screenshot.Selector {
	return []screenshot.Selector{
		screenshot.HasText("span[class*='TopLine'][class*='title']", name),
		screenshot.HasText(`span.TopLine\.module_title__XzA2Y`, name),
		screenshot.CSS("span[class*='TopLine'][class*='title']"),
		screenshot.CSS("span[class^='TopLine_title']"),
		screenshot.CSS("div[class^='TopLine_topline']"),
	}
}

var demographyBlocks = []screenshot.Selector{
	screenshot.CSS("div[class*='Compare'][class*='layout']"),
	screenshot.CSS(`div.Compare\.module_layout__YzVmZ`),
	screenshot.CSS("div[class*='Demography'][class*='wrap']"),
	screenshot.CSS(`div.Demography\.module_wrap__YjkyN`),
}

var mapMarkers = []screenshot.Selector{
	screenshot.CSS("canvas.mmrgl-canvas"),
	screenshot.CSS("div.mmrgl-map"),
	screenshot.CSS("canvas"),
	screenshot.CSS("div[class*='GeoMap']"),
	screenshot.CSS("div[class*='map']"),
}
