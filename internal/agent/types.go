package agent

// TokenResponse is returned by the login, register, and refresh endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// LoginRequest carries the credentials for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest carries the payload for POST /auth/register.
type RegisterRequest struct {
	Fullname string `json:"fullname"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MessageResponse is the generic {message} acknowledgement payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserProfile describes the authenticated user.
type UserProfile struct {
	ID       string `json:"id"`
	Fullname string `json:"fullname"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ProfileUpdate holds the optional fields of PATCH /users/profile.
type ProfileUpdate struct {
	Fullname *string `json:"fullname,omitempty"`
	Username *string `json:"username,omitempty"`
}

// PasswordChange is the payload of POST /users/change-password.
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Provider is one internet service provider.
type Provider struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Website     string   `json:"website"`
	LogoURL     *string  `json:"logo_url"`
	Rating      *float64 `json:"rating"`
	Phone       string   `json:"phone"`
}

// Tariff is one plan offered by a provider.
type Tariff struct {
	ID             string   `json:"id"`
	ProviderID     string   `json:"provider_id"`
	Name           string   `json:"name"`
	Description    *string  `json:"description"`
	Price          float64  `json:"price"`
	Speed          int      `json:"speed"`
	HasTV          bool     `json:"has_tv"`
	HasPhone       bool     `json:"has_phone"`
	ConnectionCost float64  `json:"connection_cost"`
	PromoPrice     *float64 `json:"promo_price"`
	PromoPeriod    *int     `json:"promo_period"`
	IsActive       bool     `json:"is_active"`
	URL            *string  `json:"url"`
}

// TariffSearchParams are the optional filters of GET /tariffs/search.
type TariffSearchParams struct {
	MinPrice *float64
	MaxPrice *float64
	MinSpeed *int
	MaxSpeed *int
	HasTV    *bool
	HasPhone *bool
	Limit    *int
	Offset   *int
}

// ComparisonItem is one tariff enriched with comparison metrics.
type ComparisonItem struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	ProviderName    string   `json:"provider_name"`
	CurrentPrice    float64  `json:"current_price"`
	OriginalPrice   float64  `json:"original_price"`
	IsPromo         bool     `json:"is_promo"`
	PromoPeriod     *int     `json:"promo_period"`
	Speed           int      `json:"speed"`
	Features        []string `json:"features"`
	ConnectionCost  *float64 `json:"connection_cost"`
	PricePerMbps    float64  `json:"price_per_mbps"`
	YearlyCost      float64  `json:"yearly_cost"`
	ValueScore      float64  `json:"value_score"`
	IsCheapest      bool     `json:"is_cheapest"`
	IsFastest       bool     `json:"is_fastest"`
	IsBestValue     bool     `json:"is_best_value"`
	HasMostFeatures bool     `json:"has_most_features"`
}

// ComparisonResult is the response of POST /tariffs/comparison.
type ComparisonResult struct {
	Items           []ComparisonItem `json:"items"`
	Recommendations []string         `json:"recommendations"`
	Summary         string           `json:"summary"`
}

// Review is one provider review.
type Review struct {
	ID        string      `json:"id"`
	Rating    int         `json:"rating"`
	Comment   string      `json:"comment"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
	User      *ReviewUser `json:"user"`
}

// ReviewUser identifies a review's author.
type ReviewUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
}

// ReviewCreate is the payload for creating a review.
type ReviewCreate struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// ReviewUpdate holds the optional fields of PATCH /reviews/{id}.
type ReviewUpdate struct {
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

// SearchHistoryEntry is one persisted tariff search.
type SearchHistoryEntry struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id"`
	SearchParams SearchParamsRecord `json:"search_params"`
	CreatedAt    string             `json:"created_at"`
}

// SearchParamsRecord mirrors the filter set stored with a search.
type SearchParamsRecord struct {
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	MinSpeed *int     `json:"min_speed,omitempty"`
	MaxSpeed *int     `json:"max_speed,omitempty"`
	HasTV    *bool    `json:"has_tv,omitempty"`
	HasPhone *bool    `json:"has_phone,omitempty"`
}
