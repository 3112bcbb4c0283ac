package browser

import (
	"encoding/json"
	"fmt"
)

// refAttr marks elements returned by findScript so later calls can address
// them with a plain attribute query
const refAttr = "data-vkads-ref"

// findScript returns the refs of visible elements matching a selector, in
// DOM order. Invalid CSS matches nothing.
const findScript = `(({css, text, within, attr}) => {
	const visible = el => {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		const s = window.getComputedStyle(el);
		return s.visibility !== 'hidden' && s.display !== 'none';
	};
	const query = (root, q) => {
		try { return Array.from(root.querySelectorAll(q)); } catch (e) { return null; }
	};
	const needle = (text || '').toLowerCase();
	const hasText = el => (el.innerText || el.textContent || '').toLowerCase().includes(needle);

	let roots = [document];
	if (within) {
		roots = query(document, within);
		if (!roots) return [];
	}
	const seen = new Set();
	const out = [];
	for (const root of roots) {
		let found;
		if (css) {
			found = query(root, css);
			if (!found) return [];
			if (needle) found = found.filter(hasText);
		} else {
			found = query(root, '*').filter(el => hasText(el) && !Array.from(el.children).some(hasText));
		}
		for (const el of found) {
			if (seen.has(el) || !visible(el)) continue;
			seen.add(el);
			out.push(el);
		}
	}
	window.__vkadsRefSeq = window.__vkadsRefSeq || 0;
	return out.map(el => {
		if (!el.hasAttribute(attr)) el.setAttribute(attr, String(++window.__vkadsRefSeq));
		return el.getAttribute(attr);
	});
})`

// closestScript tags the nearest ancestor of q matching css
const closestScript = `(({q, css, attr}) => {
	const el = document.querySelector(q);
	if (!el) return {ok: false};
	let c = null;
	try { c = el.closest(css); } catch (e) { return {ok: false}; }
	if (!c) return {ok: false};
	window.__vkadsRefSeq = window.__vkadsRefSeq || 0;
	if (!c.hasAttribute(attr)) c.setAttribute(attr, String(++window.__vkadsRefSeq));
	return {ok: true, ref: c.getAttribute(attr)};
})`

// boxScript measures an element in page coordinates
const boxScript = `(({q}) => {
	const el = document.querySelector(q);
	if (!el || !el.isConnected) return {ok: false};
	const r = el.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return {ok: false};
	return {ok: true, x: r.left + window.scrollX, y: r.top + window.scrollY, width: r.width, height: r.height};
})`

// pointScript returns the centre of an element in viewport coordinates
const pointScript = `(({q}) => {
	const el = document.querySelector(q);
	if (!el) return {ok: false};
	const r = el.getBoundingClientRect();
	return {ok: true, x: r.left + r.width / 2, y: r.top + r.height / 2};
})`

const textScript = `(({q}) => {
	const el = document.querySelector(q);
	return el ? (el.innerText || el.textContent || '') : '';
})`

const scrollIntoViewScript = `(({q}) => {
	const el = document.querySelector(q);
	if (el) el.scrollIntoView({block: 'center', inline: 'nearest'});
	return !!el;
})`

const pageSizeScript = `({
	width: Math.max(document.body.scrollWidth, document.documentElement.scrollWidth),
	height: Math.max(document.body.scrollHeight, document.documentElement.scrollHeight),
})`

const viewportScript = `({width: window.innerWidth, height: window.innerHeight})`

const zoomScript = `document.body.style.zoom || ''`

const setZoomScript = `(({zoom}) => { document.body.style.zoom = zoom; return true; })`

// call renders fn applied to args encoded as a JSON object literal
func call(fn string, args map[string]any) string {
	// only strings are passed, Marshal cannot fail
	data, _ := json.Marshal(args)
	return fmt.Sprintf("(%s)(%s)", fn, data)
}
