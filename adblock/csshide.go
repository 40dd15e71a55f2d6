package adblock

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	radix "github.com/hashicorp/go-immutable-radix"
)

// guardSelector never matches anything and keeps the generated CSS valid
// when no other selectors are present.
const guardSelector = "z-non-exist"

// hideDeclaration is the declaration block applied to hidden elements.
const hideDeclaration = "{ display: none !important }"

// injectionScriptTmpl adds a style element with the id "madblock" once the
// document is loaded.  A second run is a no-op.
const injectionScriptTmpl = `(function() {
  document.addEventListener('DOMContentLoaded', function() {
    if (document.getElementById('madblock'))
      return;
    var mystyle = document.createElement('style');
    mystyle.setAttribute('type', 'text/css');
    mystyle.setAttribute('id', 'madblock');
    mystyle.appendChild(document.createTextNode('%s'));
    var head = document.getElementsByTagName('head')[0];
    if (head)
      head.appendChild(mystyle);
  }, true);
})();`

// elementHiderScriptTmpl collapses the img elements, or the iframe elements
// if no img matched, whose src is a part of one of the blocked URIs.
const elementHiderScriptTmpl = `(function() {
  var uris = [%s];
  function collect(tag) {
    var found = [];
    var els = document.getElementsByTagName(tag);
    for (var i = 0; i < els.length; i++) {
      var src = els[i].getAttribute && els[i].getAttribute('src');
      if (!src)
        continue;
      for (var j = 0; j < uris.length; j++) {
        if (uris[j].indexOf(src) != -1) {
          found.push(els[i]);
          break;
        }
      }
    }
    return found;
  }
  var els = collect('img');
  if (els.length == 0)
    els = collect('iframe');
  for (var i = 0; i < els.length; i++) {
    els[i].style.setProperty('visibility', 'hidden', 'important');
    els[i].style.width = '0';
    els[i].style.height = '0';
  }
})();`

// jsStringEscaper escapes CSS text for a single-quoted JavaScript string.
var jsStringEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)

// CSSHideStore 保存元素隐藏规则。全局规则拼接成一个样式表，按域名的规则存放在
// Radix Tree 中，键是颠倒后的域名，这样一次 WalkPath 就能找到所有后缀。
type CSSHideStore struct {
	global      *strings.Builder
	globalCount int

	// domains 的键形如 "com.example."，值是用 " , " 连接的选择器。
	domains     *radix.Tree
	domainCount int
}

// NewCSSHideStore returns a new empty *CSSHideStore.
func NewCSSHideStore() (s *CSSHideStore) {
	global := &strings.Builder{}
	global.WriteString(guardSelector)

	return &CSSHideStore{
		global:  global,
		domains: radix.New(),
	}
}

// AddGlobalRule adds a selector applied on every page.
func (s *CSSHideStore) AddGlobalRule(sel string) {
	s.global.WriteString(", ")
	s.global.WriteString(sel)
	s.globalCount++
}

// AddDomainRule adds a selector for domain and all of its subdomains.
// Selectors for the same domain are accumulated.
func (s *CSSHideStore) AddDomainRule(domain, sel string) {
	key := reversedDomainKey(domain)
	if len(key) == 0 {
		return
	}

	if prev, ok := s.domains.Get(key); ok {
		sel = prev.(string) + " , " + sel
	}

	// Insert 返回一棵新树，旧树保持不变。
	s.domains, _, _ = s.domains.Insert(key, sel)
	s.domainCount++
}

// GlobalStylesheet returns the stylesheet hiding all global selectors.
func (s *CSSHideStore) GlobalStylesheet() (css string) {
	return s.global.String() + " " + hideDeclaration
}

// DomainSelectors returns the selectors for every suffix of host, least
// specific domain first.
func (s *CSSHideStore) DomainSelectors(host string) (sels []string) {
	key := reversedDomainKey(host)
	if len(key) == 0 {
		return nil
	}

	// WalkPath 按前缀从短到长访问，即 ".com"、".example.com"、….
	s.domains.Root().WalkPath(key, func(_ []byte, v any) (stop bool) {
		sels = append(sels, v.(string))

		return false
	})

	return sels
}

// InjectionScript returns the script hiding the per-domain selectors that
// apply to pageURL.  ok is false if pageURL has no host.
func (s *CSSHideStore) InjectionScript(pageURL string) (script string, ok bool) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}

	sels := append(s.DomainSelectors(u.Hostname()), guardSelector)
	css := strings.Join(sels, " , ") + " " + hideDeclaration

	return fmt.Sprintf(injectionScriptTmpl, jsStringEscaper.Replace(css)), true
}

// ElementHiderScript returns the script collapsing the elements that loaded
// one of the blocked URIs, or an empty string if uris is empty.
func ElementHiderScript(uris []string) (script string) {
	if len(uris) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(uris))
	for _, u := range uris {
		quoted = append(quoted, "'"+jsStringEscaper.Replace(u)+"'")
	}

	return fmt.Sprintf(elementHiderScriptTmpl, strings.Join(quoted, ", "))
}

// Counts returns the number of global and per-domain selectors.
func (s *CSSHideStore) Counts() (global, domain int) {
	return s.globalCount, s.domainCount
}

// reversedDomainKey returns the radix tree key for domain: its lowercased
// labels in reverse order, each followed by a dot.  The trailing dot keeps
// matches on label boundaries.
func reversedDomainKey(domain string) (key []byte) {
	domain = strings.Trim(strings.ToLower(domain), ".")
	if domain == "" {
		return nil
	}

	labels := strings.Split(domain, ".")
	slices.Reverse(labels)

	return []byte(strings.Join(labels, ".") + ".")
}
