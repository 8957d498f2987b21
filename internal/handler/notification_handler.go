package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"anoa.com/notifeed/internal/feed"
	"anoa.com/notifeed/internal/model"
	"anoa.com/notifeed/internal/repository"
	"anoa.com/notifeed/pkg/response"
	"anoa.com/notifeed/pkg/validator"
)

type NotificationHandler struct {
	feed        *feed.NotificationFeed
	archive     repository.ActivityRepository // nil when no database is configured
	redisClient *redis.Client
	upgrader    websocket.Upgrader
}

func NewNotificationHandler(
	notificationFeed *feed.NotificationFeed,
	archive repository.ActivityRepository,
	redisClient *redis.Client,
) *NotificationHandler {
	return &NotificationHandler{
		feed:        notificationFeed,
		archive:     archive,
		redisClient: redisClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // origin policy is enforced by the gateway
			},
		},
	}
}

const maxHistoryPageSize = 200

type activityPayload struct {
	ID     string    `json:"id"`
	Actor  string    `json:"actor" binding:"required"`
	Verb   string    `json:"verb" binding:"required"`
	Object string    `json:"object" binding:"required"`
	Target string    `json:"target"`
	Time   time.Time `json:"time" binding:"required"`
}

type addActivitiesRequest struct {
	Activities []activityPayload `json:"activities" binding:"required,min=1,dive"`
}

type markAllRequest struct {
	Seen *bool `json:"seen"`
	Read bool  `json:"read"`
}

// REST Endpoints

func (h *NotificationHandler) AddActivities(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req addActivitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	activities := make([]model.Activity, 0, len(req.Activities))
	for _, p := range req.Activities {
		id, err := uuid.Parse(p.ID)
		if err != nil {
			id = uuid.New()
		}
		activities = append(activities, model.Activity{
			ID:     id,
			Actor:  p.Actor,
			Verb:   p.Verb,
			Object: p.Object,
			Target: p.Target,
			Time:   p.Time,
		})
	}

	groups, err := h.feed.AddMany(c.Request.Context(), userID, activities)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	h.archiveActivities(c, userID, activities)

	c.JSON(http.StatusOK, gin.H{"data": groups})
}

func (h *NotificationHandler) MarkAll(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	// Empty body means the default: mark seen, leave read alone.
	var req markAllRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}
	seen := true
	if req.Seen != nil {
		seen = *req.Seen
	}

	groups, err := h.feed.MarkAll(c.Request.Context(), userID, seen, req.Read)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": groups})
}

func (h *NotificationHandler) UnseenCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	count, err := h.feed.UnseenCount(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// History lists the user's archived raw activities, newest first. Only
// available when a database is configured; the feed itself keeps no raw
// activity history.
func (h *NotificationHandler) History(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "activity history is not configured"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > maxHistoryPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	records, err := h.archive.GetByUserID(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

// archiveActivities records appended activities to the archive when one is
// configured. The feed is the source of truth, so a failed archive write is
// logged and the append still succeeds.
func (h *NotificationHandler) archiveActivities(c *gin.Context, userID uuid.UUID, activities []model.Activity) {
	if h.archive == nil {
		return
	}

	records := make([]model.ActivityRecord, 0, len(activities))
	for _, a := range activities {
		records = append(records, model.ActivityRecord{
			ID:         a.ID,
			UserID:     userID,
			Actor:      a.Actor,
			Verb:       a.Verb,
			Object:     a.Object,
			Target:     a.Target,
			OccurredAt: a.Time,
		})
	}
	if err := h.archive.SaveMany(c.Request.Context(), records); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to archive activities")
	}
}

// WebSocket Endpoint

// HandleWebSocket subscribes the client to the user's live count channel and
// forwards every published count until either side disconnects.
func (h *NotificationHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if h.redisClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates are not configured"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade websocket")
		return
	}
	defer conn.Close()

	pubsub := h.redisClient.Subscribe(c.Request.Context(), feed.PubSubKey(userID))
	defer pubsub.Close()

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(c.Request.Context()); err != nil {
		log.Warn().Err(err).Msg("failed to subscribe to count channel")
		return
	}

	ch := pubsub.Channel()

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				// Client disconnected or error
				return
			}
		}
	}()

	for {
		select {
		case msg := <-ch:
			// Payload is the freshly denormalized count as a decimal string.
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-clientClosed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
