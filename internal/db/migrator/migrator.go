/*
 * MIT License
 *
 * Copyright (c) 2025 linux.do
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package migrator brings the journal schema up to date.
// Package migrator 将事件日志的表结构更新到最新。
package migrator

import (
	"context"
	"fmt"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/journal"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"gorm.io/gorm"
)

// Migrate creates or updates every journal table.
// Migrate 创建或更新所有事件日志表。
func Migrate(ctx context.Context, gdb *gorm.DB) error {
	if gdb == nil {
		logger.InfoF(ctx, "[Database] journal disabled, skipping migration")
		return nil
	}
	if err := journal.AutoMigrate(gdb.WithContext(ctx)); err != nil {
		return fmt.Errorf("[Database] auto migrate failed: %w", err)
	}
	logger.InfoF(ctx, "[Database] auto migrate success")
	return nil
}

// Prune deletes journal events older than retention. A non-positive
// retention keeps everything.
// Prune 删除超过保留期的事件，保留期不为正数时全部保留。
func Prune(ctx context.Context, gdb *gorm.DB, retention time.Duration) (int64, error) {
	if gdb == nil || retention <= 0 {
		return 0, nil
	}
	deleted, err := journal.NewRepository(gdb).DeleteBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("[Database] prune failed: %w", err)
	}
	if deleted > 0 {
		logger.InfoF(ctx, "[Database] pruned %d journal event(s) older than %s", deleted, retention)
	}
	return deleted, nil
}
