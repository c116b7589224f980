package browser

// overlayScript is evaluated with (action, data) for every push. It keeps
// one blocking overlay and one floating timer per page.
const overlayScript = `(action, data) => {
	const BLOCK_ID = 'focuser-blocked-overlay';
	const TIMER_ID = 'focuser-timer-overlay';
	const byId = (id) => document.getElementById(id);
	const remove = (id) => { const el = byId(id); if (el) el.remove(); };

	const renderTimer = (d) => {
		let el = byId(TIMER_ID);
		if (!el) {
			el = document.createElement('div');
			el.id = TIMER_ID;
			el.style.cssText = 'position:fixed;top:16px;right:16px;z-index:2147483646;' +
				'padding:10px 14px;border-radius:8px;background:#1f2937;color:#fff;' +
				'font:14px/1.4 system-ui,sans-serif;box-shadow:0 4px 12px rgba(0,0,0,.3)';
			document.documentElement.appendChild(el);
		}
		const label = (d && d.sessionType) || 'Session';
		const remaining = (d && d.timeRemaining) || '00:00';
		const paused = d && d.isPaused ? ' (paused)' : '';
		const progress = Math.round((d && d.progress) || 0);
		el.textContent = label + ' ' + remaining + paused + ' - ' + progress + '%';
	};

	switch (action) {
	case 'showTimer':
	case 'updateTimer':
		renderTimer(data);
		break;
	case 'hideTimer':
		remove(TIMER_ID);
		break;
	case 'blockSite': {
		if (byId(BLOCK_ID)) break;
		const el = document.createElement('div');
		el.id = BLOCK_ID;
		el.style.cssText = 'position:fixed;inset:0;z-index:2147483647;display:flex;' +
			'flex-direction:column;align-items:center;justify-content:center;' +
			'background:#111827;color:#fff;font:18px/1.5 system-ui,sans-serif';
		const title = document.createElement('h1');
		title.textContent = 'Site Blocked';
		const text = document.createElement('p');
		text.textContent = 'This website is blocked to help you stay focused.';
		el.appendChild(title);
		el.appendChild(text);
		document.documentElement.appendChild(el);
		if (document.body) document.body.style.overflow = 'hidden';
		break;
	}
	case 'unblockSite':
		remove(BLOCK_ID);
		if (document.body) document.body.style.overflow = '';
		break;
	case 'navigate':
		if (data && data.url) window.location.href = data.url;
		break;
	}
	return true;
}`
