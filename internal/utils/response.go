package utils

import "github.com/gofiber/fiber/v2"

// OK writes {success:true, data}.
func OK(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

// Created writes a 201 envelope.
func Created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

// List writes {success:true, count, data}.
func List(c *fiber.Ctx, data any, count int, total int64) error {
	return c.JSON(fiber.Map{"success": true, "count": count, "total": total, "data": data})
}

// Message writes {success:true, message}.
func Message(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "message": message})
}
