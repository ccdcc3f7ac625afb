// api/handlers/pixel_handler.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// pixelScript is the embeddable JavaScript snippet served to host pages.
// It is a thin browser bridge: the same identity/session/cooldown rules
// implemented by the pixel package, templated with the collector
// endpoint, the site owner id and the analytics flag.
const pixelScript = `(function() {
  'use strict';

  if (window.__popliftLoaded) return;
  window.__popliftLoaded = true;

  var endpoint = '{{ENDPOINT}}';
  var ownerId = '{{OWNER_ID}}';
  var analyticsEnabled = {{ANALYTICS}};

  var SESSION_TIMEOUT = 30 * 60 * 1000;
  var COOLDOWN = 24 * 60 * 60 * 1000;
  var HEARTBEAT = 15 * 1000;

  function storageGet(key) {
    try { return window.localStorage.getItem(key); } catch (e) { return null; }
  }
  function storageSet(key, value) {
    try { window.localStorage.setItem(key, value); } catch (e) { /* stateless page view */ }
  }

  function newId(prefix) {
    return prefix + '_' + Date.now().toString(36) + Math.random().toString(36).slice(2, 10);
  }

  function visitorId() {
    var key = 'poplift_visitor_' + ownerId;
    var id = storageGet(key);
    if (!id) { id = newId('plv'); storageSet(key, id); }
    return id;
  }

  function sessionId() {
    var key = 'poplift_session_' + ownerId + '_analytics';
    var now = Date.now();
    var rec = null;
    try { rec = JSON.parse(storageGet(key)); } catch (e) {}
    if (!rec || !rec.id || now - rec.last_activity >= SESSION_TIMEOUT) {
      rec = { id: newId('pls'), started_at: now, last_activity: now };
    }
    rec.last_activity = now;
    storageSet(key, JSON.stringify(rec));
    return rec.id;
  }

  function send(path, body) {
    var payload = JSON.stringify(body);
    try {
      if (navigator.sendBeacon && navigator.sendBeacon(endpoint + path, payload)) return;
    } catch (e) {}
    fetch(endpoint + path, {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: payload,
      mode: 'cors',
      credentials: 'omit',
      keepalive: true
    }).catch(function() { /* best effort, never break the page */ });
  }

  var enteredAt = Date.now();
  var maxDepth = 0;

  function analyticsEvent(type) {
    var params = new URLSearchParams(window.location.search);
    var evt = {
      event_type: type,
      user_id: ownerId,
      session_id: sessionId(),
      visitor_id: visitorId(),
      timestamp: new Date().toISOString(),
      page_url: window.location.href,
      page_title: document.title,
      referrer: document.referrer || '',
      user_agent: navigator.userAgent,
      screen_width: window.screen.width,
      screen_height: window.screen.height,
      scroll_depth: maxDepth,
      time_on_page: Math.floor((Date.now() - enteredAt) / 1000)
    };
    if (params.get('utm_source')) evt.utm_source = params.get('utm_source');
    if (params.get('utm_medium')) evt.utm_medium = params.get('utm_medium');
    if (params.get('utm_campaign')) evt.utm_campaign = params.get('utm_campaign');
    return evt;
  }

  function track(popupId, type) {
    send('/api/track', {
      popup_id: popupId,
      event_type: type,
      url: window.location.href,
      user_agent: navigator.userAgent,
      timestamp: new Date().toISOString()
    });
  }

  function shownRegistry() {
    var key = 'poplift_shown_' + ownerId;
    var reg = {};
    try { reg = JSON.parse(storageGet(key)) || {}; } catch (e) {}
    var now = Date.now();
    for (var id in reg) { if (now - reg[id] >= COOLDOWN) delete reg[id]; }
    storageSet(key, JSON.stringify(reg));
    return {
      has: function(id) { return !!reg[id]; },
      mark: function(id) { reg[id] = Date.now(); storageSet(key, JSON.stringify(reg)); }
    };
  }

  function scrollPercent() {
    var span = document.documentElement.scrollHeight - window.innerHeight;
    if (span <= 0) return 100;
    return (window.scrollY / span) * 100;
  }

  function showPopup(p, registry) {
    if (registry.has(p.id)) return;
    registry.mark(p.id);
    track(p.id, 'impression');
    window.dispatchEvent(new CustomEvent('poplift:show', { detail: p }));
  }

  function armPopups(popups) {
    var registry = shownRegistry();
    popups.forEach(function(p) {
      if (registry.has(p.id)) return;
      if (p.type === 'time_based') {
        setTimeout(function() { showPopup(p, registry); }, (p.delay_seconds || 5) * 1000);
      } else if (p.type === 'scroll') {
        var threshold = p.scroll_percent || 50;
        var onScroll = function() {
          if (scrollPercent() > threshold) {
            window.removeEventListener('scroll', onScroll);
            showPopup(p, registry);
          }
        };
        window.addEventListener('scroll', onScroll, { passive: true });
      } else if (p.type === 'exit_intent') {
        document.addEventListener('mouseout', function handler(e) {
          if (e.clientY < 10 && !e.relatedTarget) {
            document.removeEventListener('mouseout', handler);
            showPopup(p, registry);
          }
        });
      } else {
        setTimeout(function() { showPopup(p, registry); }, 3000);
      }
    });
  }

  function fetchPopups(attempt) {
    var controller = new AbortController();
    var timer = setTimeout(function() { controller.abort(); }, 10000);
    fetch(endpoint + '/api/popups/' + ownerId, { signal: controller.signal })
      .then(function(res) { return res.json(); })
      .then(function(body) { clearTimeout(timer); armPopups(body.popups || []); })
      .catch(function() {
        clearTimeout(timer);
        if (attempt < 3) setTimeout(function() { fetchPopups(attempt + 1); }, 1000 * attempt);
      });
  }

  function start() {
    fetchPopups(1);
    if (!analyticsEnabled) return;

    send('/api/analytics', analyticsEvent('pageview'));

    window.addEventListener('scroll', function() {
      var depth = Math.min(100, Math.floor(scrollPercent()));
      if (depth > maxDepth) maxDepth = depth;
    }, { passive: true });

    var heartbeat = setInterval(function() {
      send('/api/analytics', analyticsEvent('heartbeat'));
    }, HEARTBEAT);

    var exited = false;
    function onExit() {
      if (!exited) { exited = true; clearInterval(heartbeat); }
      send('/api/analytics', analyticsEvent('exit'));
      send('/api/analytics', analyticsEvent('session_end'));
    }
    window.addEventListener('beforeunload', onExit);
    window.addEventListener('pagehide', onExit);
    document.addEventListener('visibilitychange', function() {
      if (document.visibilityState === 'hidden') onExit();
    });
  }

  if (document.readyState === 'complete' || document.readyState === 'interactive') {
    start();
  } else {
    window.addEventListener('DOMContentLoaded', start);
  }
})();`

type PixelHandler struct{}

func NewPixelHandler() *PixelHandler {
	return &PixelHandler{}
}

// Serve returns the configuration-templated pixel script:
// GET /api/pixel?id={ownerId}&analytics={true|false}.
func (h *PixelHandler) Serve(c *gin.Context) {
	ownerID := c.Query("id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id query parameter is required"})
		return
	}
	// The id is interpolated into a script literal; reject anything that
	// could break out of it.
	if strings.ContainsAny(ownerID, "'\"\\<>") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	analytics := "true"
	if c.Query("analytics") == "false" {
		analytics = "false"
	}

	// Derive the collector endpoint from the request host; the script
	// has no other way to know its own origin.
	scheme := "https"
	if c.Request.TLS == nil {
		if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "http"
		}
	}
	endpoint := scheme + "://" + c.Request.Host

	script := strings.ReplaceAll(pixelScript, "{{ENDPOINT}}", endpoint)
	script = strings.ReplaceAll(script, "{{OWNER_ID}}", ownerID)
	script = strings.ReplaceAll(script, "{{ANALYTICS}}", analytics)

	c.Header("Content-Type", "application/javascript; charset=utf-8")
	c.Header("Cache-Control", "public, max-age=300, stale-while-revalidate=600")
	c.String(http.StatusOK, script)
}
