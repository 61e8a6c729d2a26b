// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

const (
	// QryExportHistory lists the latest exports of an account.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the export table.
	//
	// Parameters:
	// - `@account`: The account email.
	// - `@limit`: The maximum number of rows.
	QryExportHistory = "SELECT * FROM `%s` WHERE account = @account ORDER BY requested_at DESC LIMIT @limit"
)
