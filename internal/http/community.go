package http

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/database/community"
	"github.com/jollyrodger/pika/internal/database/users"
	"github.com/jollyrodger/pika/internal/entities"
)

const (
	communityListSize = 5
	contactPath       = "/community/contact"
)

//go:embed static/faq.json
var faqJSON []byte

// --- Views ---

// UserBase is the public part of an account.
type UserBase struct {
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	LastLogin time.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

type ThreadBase struct {
	ThreadID    uint      `json:"thread_id"`
	Title       string    `json:"title"`
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`
	Views       int       `json:"views"`
}

type ThreadPost struct {
	PostID  uint      `json:"post_id"`
	Content string    `json:"content"`
	Created time.Time `json:"created"`
	Author  *UserBase `json:"author"`
}

type ThreadData struct {
	ThreadBase
	Author    *UserBase    `json:"author"`
	Posts     []ThreadPost `json:"posts"`
	PostCount int          `json:"post_count"`
}

// AuthorPost is a post the viewer may edit.
type AuthorPost struct {
	PostID   uint   `json:"post_id"`
	Content  string `json:"content"`
	AuthorID uint   `json:"author_id"`
}

type ProfileData struct {
	UserBase
	PostsCount int64        `json:"posts_count"`
	Threads    []ThreadData `json:"threads"`
}

type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func newUserBase(u *entities.User) *UserBase {
	if u == nil {
		return nil
	}
	return &UserBase{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
		Active:    u.Active,
	}
}

func newThreadData(t entities.Thread) ThreadData {
	return ThreadData{
		ThreadBase: ThreadBase{
			ThreadID:    t.ID,
			Title:       t.Title,
			Created:     t.Created,
			LastUpdated: t.LastUpdated,
			Views:       t.Views,
		},
		Author: newUserBase(t.Author),
		Posts: mapSlice(t.Posts, func(p entities.Post) ThreadPost {
			return ThreadPost{PostID: p.ID, Content: p.Content, Created: p.Created, Author: newUserBase(p.Author)}
		}),
		PostCount: t.PostCount(),
	}
}

// --- Forms ---

type postForm struct {
	Content string `form:"content" validate:"required"`
}

type editPostForm struct {
	PostID   uint   `form:"post_id" validate:"required"`
	AuthorID uint   `form:"author_id" validate:"required"`
	Content  string `form:"content" validate:"required"`
}

type threadForm struct {
	Title   string `form:"title" validate:"required,max=255"`
	Content string `form:"content" validate:"required"`
}

type contactForm struct {
	Subject string `form:"subject" validate:"required"`
	Message string `form:"message" validate:"required"`
	Email   string `form:"email" validate:"required,email"`
}

// --- Controller ---

// CommunityController serves the forum, the FAQ, public profiles and the contact form.
type CommunityController struct {
	community    *community.Repository
	users        *users.Repository
	sessions     *auth.SessionManager
	contactEmail string
}

// NewCommunityController creates the controller. Without sessions every
// thread visit counts as a view.
func NewCommunityController(repo *community.Repository, userRepo *users.Repository, sessions *auth.SessionManager, contactEmail string) *CommunityController {
	return &CommunityController{
		community:    repo,
		users:        userRepo,
		sessions:     sessions,
		contactEmail: contactEmail,
	}
}

// RegisterRoutes mounts /community. Writing requires a login.
func (cc *CommunityController) RegisterRoutes(router gin.IRouter, mw *auth.Middleware) {
	group := router.Group("/community")
	group.GET("/", cc.Index)
	group.GET("/thread/:id", cc.Thread)
	group.POST("/thread/:id/post", mw.RequireAuth(), cc.AddPost)
	group.POST("/thread/:id/post/edit", mw.RequireAuth(), cc.EditPost)
	group.POST("/threads", mw.RequireAuth(), cc.CreateThread)
	group.GET("/faq", cc.FAQ)
	group.GET("/profile/:username", cc.Profile)
	group.GET("/contact", cc.ContactPage)
	group.POST("/contact", cc.Contact)
}

// Index lists recent visitors and the new, active and popular threads.
// GET /community/
func (cc *CommunityController) Index(c *gin.Context) {
	ctx := c.Request.Context()

	recent, err := cc.users.RecentLogins(ctx, communityListSize)
	if err != nil {
		respondInternalError(c, err, "load recent logins")
		return
	}
	newThreads, err := cc.community.NewThreads(ctx, communityListSize)
	if err != nil {
		respondInternalError(c, err, "load new threads")
		return
	}
	active, err := cc.community.ActiveThreads(ctx, communityListSize)
	if err != nil {
		respondInternalError(c, err, "load active threads")
		return
	}
	popular, err := cc.community.PopularThreads(ctx, communityListSize)
	if err != nil {
		respondInternalError(c, err, "load popular threads")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"all_users":       mapSlice(recent, func(u entities.User) string { return u.Username }),
		"new_threads":     mapSlice(newThreads, newThreadData),
		"active_threads":  mapSlice(active, newThreadData),
		"popular_threads": mapSlice(popular, newThreadData),
	})
}

func (cc *CommunityController) threadID(c *gin.Context) (uint, bool) {
	return parseIDParam(c, "id")
}

// Thread shows a thread. The first visit of a session counts as a view.
// GET /community/thread/:id
func (cc *CommunityController) Thread(c *gin.Context) {
	id, ok := cc.threadID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	thread, err := cc.community.GetThread(ctx, id)
	if errors.Is(err, community.ErrThreadNotFound) {
		respondNotFound(c, "This thread does not exist")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get thread")
		return
	}

	if cc.sessions == nil || cc.sessions.MarkThreadVisited(c.Request, id) {
		if err := cc.community.IncrementViews(ctx, id); err != nil {
			log.Printf("Failed to count view of thread %d: %v", id, err)
		} else {
			thread.Views++
		}
	}

	data := newThreadData(*thread)
	sort.SliceStable(data.Posts, func(i, j int) bool {
		return data.Posts[i].Created.Before(data.Posts[j].Created)
	})

	authorPosts := []AuthorPost{}
	if viewer := auth.GetUserID(c); viewer != 0 {
		for _, p := range data.Posts {
			if p.Author != nil && p.Author.UserID == viewer {
				authorPosts = append(authorPosts, AuthorPost{PostID: p.PostID, Content: p.Content, AuthorID: viewer})
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"thread":       data,
		"author_posts": authorPosts,
	})
}

func threadPath(id uint) string {
	return fmt.Sprintf("/community/thread/%d", id)
}

// AddPost answers a thread.
// POST /community/thread/:id/post
func (cc *CommunityController) AddPost(c *gin.Context) {
	id, ok := cc.threadID(c)
	if !ok {
		return
	}
	var form postForm
	if !bindForm(c, &form) {
		return
	}
	_, err := cc.community.AddPost(c.Request.Context(), id, auth.GetUserID(c), form.Content)
	if errors.Is(err, community.ErrThreadNotFound) {
		respondNotFound(c, "This thread does not exist")
		return
	}
	if err != nil {
		respondInternalError(c, err, "add post")
		return
	}
	respondRedirect(c, threadPath(id), "Post added.")
}

// EditPost changes a post. The viewer must be the stored author and the
// author named by the form.
// POST /community/thread/:id/post/edit
func (cc *CommunityController) EditPost(c *gin.Context) {
	id, ok := cc.threadID(c)
	if !ok {
		return
	}
	var form editPostForm
	if !bindForm(c, &form) {
		return
	}

	viewer := auth.GetUserID(c)
	if form.AuthorID != viewer {
		respondRedirect(c, threadPath(id), "Post was not changed.")
		return
	}
	err := cc.community.EditPost(c.Request.Context(), form.PostID, viewer, form.Content)
	switch {
	case errors.Is(err, community.ErrPostNotFound):
		respondNotFound(c, "This post does not exist")
	case errors.Is(err, community.ErrNotPostAuthor):
		respondRedirect(c, threadPath(id), "Post was not changed.")
	case err != nil:
		respondInternalError(c, err, "edit post")
	default:
		respondRedirect(c, threadPath(id), "Post updated.")
	}
}

// CreateThread opens a thread with its first post.
// POST /community/threads
func (cc *CommunityController) CreateThread(c *gin.Context) {
	var form threadForm
	if !bindForm(c, &form) {
		return
	}
	thread, err := cc.community.CreateThread(c.Request.Context(), auth.GetUserID(c), strings.TrimSpace(form.Title), form.Content)
	if err != nil {
		respondInternalError(c, err, "create thread")
		return
	}
	c.Header("Location", threadPath(thread.ID))
	c.JSON(http.StatusCreated, gin.H{"thread_id": thread.ID, "next": threadPath(thread.ID)})
}

// FAQ returns the questions in display order.
// GET /community/faq
func (cc *CommunityController) FAQ(c *gin.Context) {
	entries, err := loadFAQ(contactPath)
	if err != nil {
		respondInternalError(c, err, "load faq")
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": entries})
}

func loadFAQ(contactForm string) ([]FAQEntry, error) {
	var raw []struct {
		Order int `json:"order"`
		FAQEntry
	}
	if err := json.Unmarshal(faqJSON, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse faq: %w", err)
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Order < raw[j].Order })

	entries := make([]FAQEntry, 0, len(raw))
	for _, q := range raw {
		entries = append(entries, FAQEntry{
			Question: q.Question,
			Answer:   strings.ReplaceAll(q.Answer, "{contact_form}", contactForm),
		})
	}
	return entries, nil
}

// Profile shows the public profile of a user.
// GET /community/profile/:username
func (cc *CommunityController) Profile(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := cc.users.GetByUsername(ctx, c.Param("username"))
	if errors.Is(err, users.ErrUserNotFound) {
		respondNotFound(c, "This user does not exist")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get user")
		return
	}

	count, err := cc.community.CountUserPosts(ctx, user.ID)
	if err != nil {
		respondInternalError(c, err, "count posts")
		return
	}
	threads, err := cc.community.UserThreads(ctx, user.ID)
	if err != nil {
		respondInternalError(c, err, "load threads")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": ProfileData{
		UserBase:   *newUserBase(user),
		PostsCount: count,
		Threads:    mapSlice(threads, newThreadData),
	}})
}

// ContactPage returns the contact form defaults.
// GET /community/contact?subject=
func (cc *CommunityController) ContactPage(c *gin.Context) {
	form := gin.H{"subject": c.Query("subject"), "message": "", "email": ""}
	if user := auth.GetUser(c); user != nil {
		form["email"] = user.Email
	}
	c.JSON(http.StatusOK, gin.H{"form": form})
}

// Contact hands the message to the mail client of the user.
// POST /community/contact
func (cc *CommunityController) Contact(c *gin.Context) {
	var form contactForm
	if !bindForm(c, &form) {
		return
	}
	respondRedirect(c, mailtoURL(cc.contactEmail, form.Subject, form.Message, form.Email), "")
}

func mailtoURL(to, subject, body, cc string) string {
	return fmt.Sprintf("mailto:%s?subject=%s&body=%s&cc=%s",
		to, mailtoEscape(subject), mailtoEscape(body), mailtoEscape(cc))
}

// mailtoEscape escapes spaces as %20, mail clients do not decode "+".
func mailtoEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
