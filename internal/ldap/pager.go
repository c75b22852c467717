package ldap

import (
	"context"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// DefaultPageSize is used by callers that want paging without picking a size.
const DefaultPageSize = 1000

// pageRequest describes one paginated search.
type pageRequest struct {
	baseDN     string
	scope      Scope
	filter     string
	attributes []string
	sizeLimit  int // 0 means unlimited
	pageSize   uint32
	callback   EntryCallback
	trackBy    string
	logCtx     context.Context // Logging context; ctx is used when nil
}

// pagedSearch drives the simple paged results control until the server returns an empty cookie.
// A failing page aborts the whole search; entries from earlier pages are discarded.
// Zero matches yield an empty, non-nil result.
func pagedSearch(ctx context.Context, conn Conn, req pageRequest) (*SearchResult, error) {
	if req.pageSize == 0 {
		return nil, ErrInvalidPageSize
	}

	logCtx := req.logCtx
	if logCtx == nil {
		logCtx = ctx
	}

	start := time.Now()
	fields := map[string]any{
		"base_dn":    req.baseDN,
		"filter":     req.filter,
		"scope":      req.scope.String(),
		"attributes": req.attributes,
		"page_size":  req.pageSize,
		"size_limit": req.sizeLimit,
		"track_by":   req.trackBy,
	}

	tflog.SubsystemDebug(logCtx, LogSubsystem, "Starting paged search", fields)

	result := &SearchResult{}
	if req.trackBy != "" {
		result.Tracked = make(map[string]*Entry)
	}

	processed := 0
	pagingControl := ldap.NewControlPaging(req.pageSize)

	for {
		if err := ctx.Err(); err != nil {
			tflog.SubsystemWarn(logCtx, LogSubsystem, "Paged search cancelled by context", map[string]any{
				"pages_completed": result.Pages,
				"context_error":   err.Error(),
			})
			return nil, NewLDAPError(KindSearch, "Paged search cancelled", req.baseDN, err)
		}

		result.Pages++
		pageStart := time.Now()

		searchReq := ldap.NewSearchRequest(
			req.baseDN,
			req.scope.ldapScope(),
			ldap.NeverDerefAliases,
			req.sizeLimit,
			0,
			false,
			req.filter,
			req.attributes,
			[]ldap.Control{pagingControl},
		)

		page, err := conn.Search(searchReq)
		serverLimit := false
		if err != nil {
			if page == nil || !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
				pageFields := map[string]any{"page_number": result.Pages}
				LogLDAPError(logCtx, LogSubsystem, "paged_search", err, pageFields)
				return nil, NewLDAPError(KindSearch, "Search failed", req.baseDN, err)
			}
			serverLimit = true
		}

		for _, raw := range page.Entries {
			if req.sizeLimit > 0 && processed >= req.sizeLimit {
				break
			}
			result.add(NormalizeEntry(raw, req.callback), req.trackBy)
			processed++
		}

		tflog.SubsystemTrace(logCtx, LogSubsystem, "Completed search page", map[string]any{
			"page_number":     result.Pages,
			"entries_in_page": len(page.Entries),
			"total_entries":   processed,
			"duration_ms":     time.Since(pageStart).Milliseconds(),
		})

		cookie := responseCookie(page.Controls)
		if len(cookie) == 0 || serverLimit {
			break
		}
		if req.sizeLimit > 0 && processed >= req.sizeLimit {
			releasePagingState(logCtx, conn, searchReq, cookie)
			break
		}
		pagingControl.SetCookie(cookie)
	}

	LogPerformance(logCtx, LogSubsystem, "paged_search", time.Since(start), map[string]any{
		"base_dn":         req.baseDN,
		"total_entries":   result.Len(),
		"pages_processed": result.Pages,
	})

	return result, nil
}

// releasePagingState sends a zero-size paging request so the server drops the
// state it holds for cookie. Failures are logged and otherwise ignored.
func releasePagingState(logCtx context.Context, conn Conn, req *ldap.SearchRequest, cookie []byte) {
	control := ldap.NewControlPaging(0)
	control.SetCookie(cookie)
	req.Controls = []ldap.Control{control}

	if _, err := conn.Search(req); err != nil {
		tflog.SubsystemWarn(logCtx, LogSubsystem, "Failed to release paged search state", map[string]any{
			"error": err.Error(),
		})
	}
}

// add appends entry, or indexes it under its track-by key (last write wins).
func (r *SearchResult) add(entry *Entry, trackBy string) {
	if r.Tracked != nil {
		r.Tracked[entry.trackKey(trackBy)] = entry
		return
	}
	r.Entries = append(r.Entries, entry)
}

// responseCookie extracts the paging cookie from response controls.
// A missing or foreign control counts as an empty cookie.
func responseCookie(controls []ldap.Control) []byte {
	paging, ok := ldap.FindControl(controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
	if !ok || paging == nil {
		return nil
	}
	return paging.Cookie
}
