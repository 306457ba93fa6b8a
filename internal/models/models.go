// Package models contains the domain entities of the marketplace.
// The `crud` tags map struct fields to node properties so records can be
// scanned with graphdb.Scan; the `json` tags shape API responses.
package models

import (
	"strings"
	"time"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

const (
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// User is a `:User` node. The password hash never leaves the service layer.
type User struct {
	ID          string    `crud:"pk,property:id,label:User" json:"id"`
	Name        string    `crud:"property:name" json:"name"`
	UserName    string    `crud:"property:userName" json:"userName"`
	Email       string    `crud:"property:email" json:"email"`
	Password    string    `crud:"property:password" json:"-"`
	Avatar      string    `crud:"property:avatar" json:"avatar,omitempty"`
	Bio         string    `crud:"property:bio" json:"bio,omitempty"`
	Confirmed   bool      `crud:"property:confirmed" json:"confirmed"`
	Deactivated bool      `crud:"property:deactivated" json:"deactivated"`
	CustomerID  string    `crud:"property:customerId" json:"-"`
	CreatedAt   time.Time `crud:"property:createdAt" json:"createdAt"`

	// Role and RoleID are read from the user's IS_A edge.
	Role   string `json:"role"`
	RoleID string `json:"roleId,omitempty"`
}

// UserUpdate carries the editable profile fields; nil fields are unchanged.
type UserUpdate struct {
	Name     *string `json:"name,omitempty"`
	UserName *string `json:"userName,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

// Seller is a `:Seller` role node.
type Seller struct {
	ID                string `crud:"pk,property:id,label:Seller" json:"id"`
	Verified          bool   `crud:"property:verified" json:"verified"`
	IdentityCardFront string `crud:"property:identityCardFront" json:"-"`
	IdentityCardBack  string `crud:"property:identityCardBack" json:"-"`
	Subscribers       int64  `crud:"property:subscribers" json:"subscribers"`

	UserID   string `json:"userId"`
	Name     string `json:"name"`
	UserName string `json:"userName"`
	Avatar   string `json:"avatar,omitempty"`
	Email    string `json:"-"`
}

// Post is an album, a `:Post` node owned by a seller.
type Post struct {
	ID          string    `crud:"pk,property:id,label:Post" json:"id"`
	Title       string    `crud:"property:title" json:"title"`
	Description string    `crud:"property:description" json:"description"`
	Price       int64     `crud:"property:price" json:"price"`
	Views       int64     `crud:"property:views" json:"views"`
	Likes       int64     `crud:"property:likes" json:"likes"`
	CreatedAt   time.Time `crud:"property:createdAt" json:"createdAt"`

	SellerID   string `json:"sellerId"`
	CategoryID string `json:"categoryId,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Picture belongs to an album's collection, ordered by Position.
type Picture struct {
	ID       string `crud:"pk,property:id,label:Picture" json:"id"`
	URL      string `crud:"property:url" json:"url"`
	Position int    `crud:"property:position" json:"position"`
}

type Category struct {
	ID   string `crud:"pk,property:id,label:Category" json:"id"`
	Name string `crud:"property:name" json:"name"`
	Slug string `crud:"property:slug" json:"slug"`
}

// CategorySlug lower-cases name and joins its words with hyphens. Two
// categories may not share a slug.
func CategorySlug(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}

// Plan is a seller's subscription offer. Price is in minor units.
type Plan struct {
	ID      string `crud:"pk,property:id,label:Plan" json:"id"`
	Name    string `crud:"property:name" json:"name"`
	Price   int64  `crud:"property:price" json:"price"`
	Period  string `crud:"property:period" json:"period"`
	PriceID string `crud:"property:priceId" json:"-"`
}

// Subscription is the SUBSCRIBED_TO edge between a user and a seller,
// carrying a snapshot of the plan at subscription time.
type Subscription struct {
	UserID                 string    `json:"userId"`
	SellerID               string    `json:"sellerId"`
	PlanID                 string    `crud:"property:planId" json:"planId"`
	PlanName               string    `crud:"property:planName" json:"planName"`
	Price                  int64     `crud:"property:price" json:"price"`
	Period                 string    `crud:"property:period" json:"period"`
	ProviderSubscriptionID string    `crud:"property:providerSubscriptionId" json:"-"`
	CreatedAt              time.Time `crud:"property:createdAt" json:"createdAt"`
	ExpiresAt              time.Time `crud:"property:expiresAt" json:"expiresAt"`
}

// Wallet holds a seller's balance in minor units.
type Wallet struct {
	ID        string    `crud:"pk,property:id,label:Wallet" json:"id"`
	Balance   int64     `crud:"property:balance" json:"balance"`
	UpdatedAt time.Time `crud:"property:updatedAt" json:"updatedAt"`
}

type Notification struct {
	ID        string    `crud:"pk,property:id,label:Notification" json:"id"`
	Title     string    `crud:"property:title" json:"title"`
	Body      string    `crud:"property:body" json:"body"`
	Read      bool      `crud:"property:read" json:"read"`
	CreatedAt time.Time `crud:"property:createdAt" json:"createdAt"`
}

type DeviceToken struct {
	Token     string    `crud:"pk,property:token,label:DeviceToken" json:"token"`
	Platform  string    `crud:"property:platform" json:"platform"`
	CreatedAt time.Time `crud:"property:createdAt" json:"createdAt"`
}

// Purchase is one settled album sale.
type Purchase struct {
	UserID   string
	SellerID string
	PostID   string
	Amount   int64
	// Notification is stored for the seller in the same transaction.
	Notification Notification
}

// NewSubscription is one settled subscription.
type NewSubscription struct {
	Subscription Subscription
	Notification Notification
}

// Account is everything signup writes in one transaction.
type Account struct {
	User   User
	Role   string
	RoleID string
	// WalletID and Plans are only used for sellers.
	WalletID string
	Plans    []Plan
}

type LikeResult struct {
	Liked bool  `json:"liked"`
	Likes int64 `json:"likes"`
}

// PostFilter narrows album listings. Zero values mean no filter.
type PostFilter struct {
	CategoryID string
	SellerID   string
	Offset     int
	Limit      int
}

// Stats is the admin dashboard summary.
type Stats struct {
	Users          int64 `json:"users"`
	Sellers        int64 `json:"sellers"`
	PendingSellers int64 `json:"pendingSellers"`
	Posts          int64 `json:"posts"`
	Purchases      int64 `json:"purchases"`
	Subscriptions  int64 `json:"subscriptions"`
	Revenue        int64 `json:"revenue"`
	Categories     int64 `json:"categories"`
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   string
	RoleID string
	Admin  bool
}

// SellerID returns the caller's seller id, or "" for non-sellers.
func (a Actor) SellerID() string {
	if a.Role != RoleSeller {
		return ""
	}
	return a.RoleID
}
