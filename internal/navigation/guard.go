// Package navigation は認証状態に応じた画面遷移の判定を提供する。
package navigation

import "strings"

// ルートとルートグループ
const (
	GroupAuth = "(auth)"
	GroupTabs = "(tabs)"

	RouteLogin   = "(auth)/login"
	RouteHome    = "(tabs)"
	RouteProfile = "profile"
)

// State はナビゲーション判定の入力。
type State struct {
	Loading    bool
	HasSession bool
	// Route は現在のルート（例: "(auth)/login", "(tabs)", "profile"）。
	Route string
}

// Decision はナビゲーション判定の結果。
// Redirectが空の場合は遷移しない。
type Decision struct {
	Redirect string
}

// None は遷移しないことを表す。
func (d Decision) None() bool {
	return d.Redirect == ""
}

// Resolve は認証状態と現在のルートから遷移先を判定する。
// 副作用を持たず、同じ入力には同じ結果を返す。
func Resolve(state State) Decision {
	if state.Loading {
		return Decision{}
	}

	inAuthGroup := Group(state.Route) == GroupAuth
	switch {
	case !state.HasSession && !inAuthGroup:
		return Decision{Redirect: RouteLogin}
	case state.HasSession && inAuthGroup:
		return Decision{Redirect: RouteHome}
	default:
		return Decision{}
	}
}

// Group はルートの先頭セグメント（ルートグループ）を返す。
func Group(route string) string {
	route = strings.TrimPrefix(route, "/")
	if i := strings.IndexByte(route, '/'); i >= 0 {
		return route[:i]
	}
	return route
}

var pathRoutes = map[string]string{
	"/login":   RouteLogin,
	"/":        RouteHome,
	"/profile": RouteProfile,
}

// RouteForPath はWebフロントのパスをルートに変換する。
// 未知のパスは先頭の"/"を除いた値をそのままルートとして扱う。
func RouteForPath(path string) string {
	if path == "" {
		path = "/"
	}
	if route, ok := pathRoutes[path]; ok {
		return route
	}
	return strings.TrimPrefix(path, "/")
}

// PathForRoute はルートをWebフロントのパスに変換する。
func PathForRoute(route string) string {
	for path, r := range pathRoutes {
		if r == route {
			return path
		}
	}
	return "/" + route
}
