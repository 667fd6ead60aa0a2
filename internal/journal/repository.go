/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package journal

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository provides data access for journal events.
// Repository 提供事件日志的数据访问。
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository instance.
// NewRepository 创建新的 Repository 实例。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AutoMigrate creates or updates the journal tables.
// AutoMigrate 创建或更新事件日志表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Event{})
}

// Create stores an event.
// Create 保存事件。
func (r *Repository) Create(ctx context.Context, event *Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetByEventID retrieves an event by its UUID.
// GetByEventID 根据 UUID 获取事件。
func (r *Repository) GetByEventID(ctx context.Context, eventID string) (*Event, error) {
	var event Event
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// List retrieves events newest first, with filtering and pagination. The
// total ignores paging.
// List 按时间倒序获取事件，支持过滤和分页，total 不受分页影响。
func (r *Repository) List(ctx context.Context, filter *EventFilter) ([]*Event, int64, error) {
	if filter == nil {
		filter = &EventFilter{}
	}
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	var events []*Event
	var total int64

	query := r.db.WithContext(ctx).Model(&Event{})

	// Apply filters / 应用过滤条件
	if filter.Cluster != "" {
		query = query.Where("cluster = ?", filter.Cluster)
	}
	if filter.Node != "" {
		query = query.Where("node = ?", filter.Node)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Tool != "" {
		query = query.Where("tool = ?", filter.Tool)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("created_at <= ?", *filter.Until)
	}

	// Count total / 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination / 应用分页
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if err := query.Order("created_at DESC").Order("id DESC").Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Latest retrieves the newest event of a node, or nil when it has none.
// Latest 获取节点的最新事件，没有时返回 nil。
func (r *Repository) Latest(ctx context.Context, cluster, nodeName string) (*Event, error) {
	var event Event
	err := r.db.WithContext(ctx).
		Where("cluster = ? AND node = ?", cluster, nodeName).
		Order("created_at DESC").Order("id DESC").
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// DeleteBefore removes events older than t and returns how many went.
// DeleteBefore 删除早于 t 的事件并返回删除数量。
func (r *Repository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", t).Delete(&Event{})
	return result.RowsAffected, result.Error
}
