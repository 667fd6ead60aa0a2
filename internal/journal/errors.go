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

import "errors"

// Error definitions for the journal package.
// 事件日志包的错误定义。
var (
	// ErrEventNotFound indicates the event was not found.
	// ErrEventNotFound 表示事件未找到。
	ErrEventNotFound = errors.New("journal event not found / 事件未找到")

	// ErrInvalidFilter indicates a list filter with an inverted time range or negative paging.
	// ErrInvalidFilter 表示过滤条件的时间范围颠倒或分页参数为负。
	ErrInvalidFilter = errors.New("invalid journal filter / 无效的事件过滤条件")
)
