package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
)

type loginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func login(c *gin.Context) {
	var in loginInput
	if !bind(c, &in) {
		return
	}
	info, err := models.Login(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
		return
	}
	ok(c, info)
}

func issueToken(c *gin.Context) {
	var in loginInput
	if !bind(c, &in) {
		return
	}
	token, err := models.IssueBearerToken(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
		return
	}
	ok(c, gin.H{"token": token, "expires_in": int(utils.TokenLifespan().Seconds())})
}

func logout(c *gin.Context) {
	done, err := models.Logout(c.Request.Context())
	if err != nil {
		badRequest(c, "%s", err.Error())
		return
	}
	ok(c, gin.H{"logged_out": done})
}

func me(c *gin.Context) {
	id, _ := utils.GetUserIdFromContext(c.Request.Context())
	user, err := models.GetUser(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

func listUsers(c *gin.Context) {
	ctx := c.Request.Context()
	if role := c.Query("role"); role != "" {
		users, err := models.ListUsersWithRole(ctx, nil, role)
		if err != nil {
			fail(c, err)
			return
		}
		for i := range users {
			users[i].PrepareGive()
		}
		ok(c, users)
		return
	}
	users, err := models.ListUsers(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, users)
}

func getUser(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	user, err := models.GetUser(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

func createUser(c *gin.Context) {
	var in models.NewUser
	if !bind(c, &in) {
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, user)
}

func assignRoles(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in struct {
		Roles []string `json:"roles"`
	}
	if !bind(c, &in) {
		return
	}
	user, err := models.AssignRoles(c.Request.Context(), id, in.Roles)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

func setUserActive(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in activeInput
	if !bind(c, &in) {
		return
	}
	user, err := models.SetUserActive(c.Request.Context(), id, in.IsActive)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

func listRoles(c *gin.Context) {
	roles, err := models.ListRoles(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, roles)
}

func createRole(c *gin.Context) {
	var in models.NewRole
	if !bind(c, &in) {
		return
	}
	role, err := models.CreateRole(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, role)
}
