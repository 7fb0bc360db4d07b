// Package gate は上流APIレート制限の協調ゲートを提供する。
// いずれかの呼び出しが429を受けてゲートを閉じると、
// 同じゲートを共有する全呼び出しが再開放まで待機する。
package gate

import (
	"context"
	"sync"
)

// Gate はプロセス内で共有する開閉式のレートゲート。
// 開いている間はWaitが即座に通過し、閉じている間は再開放までブロックする。
// ゼロ値は使用できず、NewGateで生成すること。
type Gate struct {
	mu   sync.Mutex
	ch   chan struct{} // クローズ済み = 開放状態
	open bool
}

// NewGate は開放状態のGateを生成する。
func NewGate() *Gate {
	ch := make(chan struct{})
	close(ch)
	return &Gate{ch: ch, open: true}
}

// Wait はゲートが開くまでブロックする。
// ゲートが開いている場合は即座にnilを返す。
// コンテキストがキャンセルされた場合はctx.Err()を返す。
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close はゲートを閉じる。既に閉じている場合は何もしない（冪等）。
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return
	}
	g.ch = make(chan struct{})
	g.open = false
}

// Open はゲートを開き、待機中の全Wait呼び出しを一斉に解放する。
// 既に開いている場合は何もしない（冪等）。
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return
	}
	close(g.ch)
	g.open = true
}

// IsOpen は現在ゲートが開いているかを返す。
// ログおよびテスト用。判定直後に状態が変わり得るため制御には使わないこと。
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}
