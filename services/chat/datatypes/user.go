// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// DefaultUserName stands in when a sign-in provider supplies no display
// name.
const DefaultUserName = "Anonymous User"

// UserProfile is the persisted record created on first successful sign-in
// via the register-user endpoint.
type UserProfile struct {
	FirebaseUID string    `json:"firebaseUid"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
