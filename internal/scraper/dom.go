package scraper

import "context"

// Scripts evaluated against the live document. Each returns plain JSON so the
// result decodes into the snapshot types without touching live node handles
// afterwards. Selector alternatives reflect an unstable underlying document
// schema; each script tries them in order and settles for the first that
// yields anything.
const (
	// inboxSnapshotScript summarizes the visible inbox list, most recent first.
	inboxSnapshotScript = `() => {
		const containers = document.querySelectorAll('div[class*="x13dflua"][style*="opacity: 1"]');
		const entries = [];
		for (const container of containers) {
			const button = container.querySelector('div[role="button"]');
			if (!button) continue;

			let sender = '';
			for (const sel of ['span[class*="xlyipyv"]', 'span[class*="x1lliihq"]', 'span[dir="auto"]', 'h6 span']) {
				const el = button.querySelector(sel);
				if (el && el.textContent.trim()) { sender = el.textContent.trim(); break; }
			}

			let preview = '';
			for (const sel of ['span[class*="x1fhwpqd"]', 'span[class*="x1lliihq"]', 'span[dir="auto"]']) {
				const el = button.querySelector(sel);
				if (el && el.textContent.trim() && el.textContent.trim() !== sender) { preview = el.textContent.trim(); break; }
			}

			let timeLabel = '';
			const abbr = button.querySelector('abbr[aria-label]');
			if (abbr) timeLabel = abbr.getAttribute('aria-label');

			entries.push({ sender, preview, timeLabel });
		}
		return entries;
	}`

	// openHeadConversationScript re-resolves and clicks the most recent inbox
	// entry. Re-resolution matters: the list may have re-rendered since the
	// snapshot was taken.
	openHeadConversationScript = `() => {
		const containers = document.querySelectorAll('div[class*="x13dflua"][style*="opacity: 1"]');
		if (containers.length === 0) return false;
		const button = containers[0].querySelector('div[role="button"]');
		if (!button) return false;
		button.click();
		return true;
	}`

	// currentLocationScript reports the document's current URL.
	currentLocationScript = `() => window.location.href`

	// conversationHeaderScript reads the counterparty's display name and
	// handle from the open conversation's header area.
	conversationHeaderScript = `() => {
		let displayName = '';
		let handle = '';
		for (const sel of ['div[role="main"] h1 span', 'div[role="main"] h2 span', 'header span[dir="auto"]', 'div[role="main"] span[dir="auto"]']) {
			const el = document.querySelector(sel);
			if (el && el.textContent.trim()) { displayName = el.textContent.trim(); break; }
		}
		const profileLink = document.querySelector('div[role="main"] a[href^="/"]');
		if (profileLink) {
			const href = profileLink.getAttribute('href') || '';
			handle = href.replace(/\//g, '');
		}
		return { displayName, handle };
	}`

	// conversationNodesScript snapshots the message pane as flattened text
	// plus anchor hrefs, in rendering order.
	conversationNodesScript = `() => {
		let containers = [];
		for (const sel of ['div[role="row"]', 'div[class*="x1n2onr6"]', 'div[class*="x1lliihq"]']) {
			const found = document.querySelectorAll('div[role="main"] ' + sel);
			if (found.length > 0) { containers = Array.from(found); break; }
		}
		return containers.slice(0, 200).map((el) => ({
			text: (el.textContent || '').trim(),
			links: Array.from(el.querySelectorAll('a[href]')).map((a) => a.href)
		}));
	}`

	// scrollStepScript nudges the message pane upward to load older history.
	scrollStepScript = `() => {
		const pane = document.querySelector('div[role="main"]') ||
			document.querySelector('div[data-pagelet="IGDThreadList"]');
		if (!pane) return false;
		pane.scrollTop = pane.scrollTop - 100;
		return true;
	}`

	// backAffordanceScript clicks a structural "back to inbox" control, if
	// one exists.
	backAffordanceScript = `() => {
		for (const sel of ['a[href*="/direct/"]', 'button[aria-label*="Back"]', 'button[aria-label*="Close"]']) {
			const el = document.querySelector(sel);
			if (el) { el.click(); return true; }
		}
		return false;
	}`
)

// snapshotInbox captures the inbox list. Fail-soft: an evaluation error
// yields an empty snapshot.
func snapshotInbox(ctx context.Context, doc DocumentQuery) ([]InboxEntry, error) {
	var entries []InboxEntry
	if err := doc.Evaluate(ctx, inboxSnapshotScript, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// openHeadConversation activates the most recent inbox entry.
func openHeadConversation(ctx context.Context, doc DocumentQuery) (bool, error) {
	var clicked bool
	if err := doc.Evaluate(ctx, openHeadConversationScript, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

// currentLocation reports the document's URL.
func currentLocation(ctx context.Context, doc DocumentQuery) (string, error) {
	var href string
	if err := doc.Evaluate(ctx, currentLocationScript, &href); err != nil {
		return "", err
	}
	return href, nil
}

// snapshotConversation captures the open conversation's header and message
// nodes in one pass.
func snapshotConversation(ctx context.Context, doc DocumentQuery) ([]MessageNode, ConversationHeader, error) {
	var header ConversationHeader
	if err := doc.Evaluate(ctx, conversationHeaderScript, &header); err != nil {
		return nil, ConversationHeader{}, err
	}

	var nodes []MessageNode
	if err := doc.Evaluate(ctx, conversationNodesScript, &nodes); err != nil {
		return nil, ConversationHeader{}, err
	}

	return nodes, header, nil
}

// stepScroll performs one history-expansion scroll step.
func stepScroll(ctx context.Context, doc DocumentQuery) error {
	return doc.Evaluate(ctx, scrollStepScript, nil)
}

// clickBackAffordance tries the structural back controls.
func clickBackAffordance(ctx context.Context, doc DocumentQuery) (bool, error) {
	var clicked bool
	if err := doc.Evaluate(ctx, backAffordanceScript, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}
